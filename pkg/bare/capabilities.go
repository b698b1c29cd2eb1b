package bare

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Capabilities is the document a Bare server serves at its root.
type Capabilities struct {
	// Versions lists the protocol versions the server speaks.
	Versions []string `json:"versions" yaml:"versions"`

	// Language is the server implementation language.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// MemoryUsage is the server's reported memory usage in megabytes.
	MemoryUsage float64 `json:"memoryUsage,omitempty" yaml:"memory_usage,omitempty"`

	Maintainer *Maintainer `json:"maintainer,omitempty" yaml:"maintainer,omitempty"`
	Project    *Project    `json:"project,omitempty" yaml:"project,omitempty"`
}

// Maintainer identifies who runs the server.
type Maintainer struct {
	Email   string `json:"email,omitempty" yaml:"email,omitempty"`
	Website string `json:"website,omitempty" yaml:"website,omitempty"`
}

// Project describes the server software.
type Project struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Website     string `json:"website,omitempty" yaml:"website,omitempty"`
	Repository  string `json:"repository,omitempty" yaml:"repository,omitempty"`
}

// ParseCapabilities decodes and checks a capability document.
func ParseCapabilities(data []byte) (Capabilities, error) {
	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return Capabilities{}, fmt.Errorf("invalid capability document: %w", err)
	}
	if err := caps.Validate(); err != nil {
		return Capabilities{}, err
	}
	return caps, nil
}

// Validate checks that the document advertises at least one version.
func (c Capabilities) Validate() error {
	if len(c.Versions) == 0 {
		return errors.New("capability document lists no versions")
	}
	return nil
}

// Supports reports whether version is advertised.
func (c Capabilities) Supports(version string) bool {
	for _, v := range c.Versions {
		if v == version {
			return true
		}
	}
	return false
}
