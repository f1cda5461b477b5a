package store

import (
	"crypto/sha1"
	"fmt"
	"os"
	"sync"
)

// SentryFile is the machine-auth blob the platform updates in chunks.
// Writes land at arbitrary offsets; the platform is then acknowledged
// with the size and SHA-1 of the whole file.
type SentryFile struct {
	mu   sync.Mutex
	path string
}

// NewSentryFile wraps the sentry blob at path. The file itself is
// created on first write.
func NewSentryFile(path string) *SentryFile {
	return &SentryFile{path: path}
}

// Hash returns the SHA-1 of the current file contents, or nil when the
// file does not exist yet (fresh machine, no sentry issued).
func (s *SentryFile) Hash() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sentry %s: %w", s.path, err)
	}
	sum := sha1.Sum(data)
	return sum[:], nil
}

// Write applies a chunk at the given offset and returns the resulting
// file size and whole-file SHA-1 for the acknowledgement.
func (s *SentryFile) Write(offset int64, data []byte) (size int64, hash []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return 0, nil, fmt.Errorf("opening sentry %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return 0, nil, fmt.Errorf("writing sentry chunk at %d: %w", offset, err)
	}
	if err := f.Sync(); err != nil {
		return 0, nil, fmt.Errorf("syncing sentry: %w", err)
	}

	full, err := os.ReadFile(s.path)
	if err != nil {
		return 0, nil, fmt.Errorf("rereading sentry: %w", err)
	}
	sum := sha1.Sum(full)
	return int64(len(full)), sum[:], nil
}
