// Package storage defines the file-system abstraction for keyframe inputs
// and sequencer outputs.
package storage

import "github.com/starford/lectorlips/internal/models"

// Provider is the interface for rooted file operations.
type Provider interface {
	// Root returns the absolute directory all paths are relative to.
	Root() string
	// List returns metadata for every .txt file under dir (relative to root).
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Create writes content to a new file at path; it never replaces an
	// existing file and fails with apperr.ErrAlreadyExists instead.
	Create(path string, content []byte) error
}
