// Package capstore persists gateway capability documents between runs so
// the CLI can skip discovery for a gateway it has recently seen.
//
// The cache is a single JSON file keyed by gateway URL. Writes are atomic
// (write-tmp-then-rename) and serialized by a mutex in-process and a lock
// file across processes.
package capstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/Sentinel-Gate/bareclient/pkg/bare"
)

// schemaVersion is written to every cache file.
const schemaVersion = "1"

// File is the on-disk cache layout.
type File struct {
	Version   string           `json:"version"`
	Gateways  map[string]Entry `json:"gateways"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Entry is the cached document of one gateway.
type Entry struct {
	Capabilities bare.Capabilities `json:"capabilities"`
	FetchedAt    time.Time         `json:"fetched_at"`
}

// FileStore reads and writes the capability cache file.
// It implements outbound.CapabilityStore.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates a store backed by path. The file is created on the
// first Store.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the configured file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and parses the cache file. A missing file yields an empty cache.
func (s *FileStore) Load() (*File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyFile(), nil
		}
		return nil, fmt.Errorf("read capability cache: %w", err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			if mode := info.Mode().Perm(); mode&0077 != 0 {
				s.logger.Warn("capability cache has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse capability cache: %w", err)
	}
	if f.Gateways == nil {
		f.Gateways = map[string]Entry{}
	}
	return &f, nil
}

// Lookup returns the cached document for server if it is younger than
// maxAge. A zero maxAge never expires.
func (s *FileStore) Lookup(server string, maxAge time.Duration) (bare.Capabilities, bool, error) {
	f, err := s.Load()
	if err != nil {
		return bare.Capabilities{}, false, err
	}

	entry, ok := f.Gateways[server]
	if !ok {
		return bare.Capabilities{}, false, nil
	}
	if maxAge > 0 && s.now().Sub(entry.FetchedAt) > maxAge {
		s.logger.Debug("cached capabilities expired", "server", server, "fetched_at", entry.FetchedAt)
		return bare.Capabilities{}, false, nil
	}
	if err := entry.Capabilities.Validate(); err != nil {
		return bare.Capabilities{}, false, nil
	}
	return entry.Capabilities, true, nil
}

// Store records caps for server, replacing any previous entry.
// A corrupt cache file is replaced rather than reported.
func (s *FileStore) Store(server string, caps bare.Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lock.Close() }()

	if err := lockFile(lock); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer unlockFile(lock) //nolint:errcheck

	f, err := s.Load()
	if err != nil {
		s.logger.Warn("replacing unreadable capability cache", "path", s.path, "error", err)
		f = emptyFile()
	}

	now := s.now()
	f.Version = schemaVersion
	f.Gateways[server] = Entry{Capabilities: caps, FetchedAt: now}
	f.UpdatedAt = now

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal capability cache: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on capability cache", "error", err)
	}

	s.logger.Debug("capabilities cached", "path", s.path, "server", server)
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to capability cache: %w", err)
	}
	return nil
}

func emptyFile() *File {
	return &File{Version: schemaVersion, Gateways: map[string]Entry{}}
}
