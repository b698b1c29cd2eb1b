package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// RegisterCustomValidators registers the bare-client validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("redirect_policy", validateRedirectPolicy); err != nil {
		return fmt.Errorf("failed to register redirect_policy validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// ValidRedirectPolicy reports whether s is "follow", "manual" or "error".
// bare.ParseRedirectPolicy maps anything else to follow; configuration
// and flags reject it instead so typos surface.
func ValidRedirectPolicy(s string) bool {
	switch bare.RedirectPolicy(s) {
	case bare.RedirectFollow, bare.RedirectManual, bare.RedirectErrorPolicy:
		return true
	}
	return false
}

func validateRedirectPolicy(fl validator.FieldLevel) bool {
	return ValidRedirectPolicy(fl.Field().String())
}

// validateDuration accepts non-negative Go durations ("30s", "1m30s").
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= 0
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateBackoffRange(); err != nil {
		return err
	}

	return nil
}

// validateBackoffRange ensures min_backoff does not exceed max_backoff.
func (c *Config) validateBackoffRange() error {
	lo, hi := c.BackoffRange()
	if lo > hi {
		return fmt.Errorf("discovery: min_backoff (%s) exceeds max_backoff (%s)", c.Discovery.MinBackoff, c.Discovery.MaxBackoff)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "http_url":
		return fmt.Sprintf("%s must be an http or https URL", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration such as \"30s\"", field)
	case "redirect_policy":
		return fmt.Sprintf("%s must be one of: follow manual error", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
