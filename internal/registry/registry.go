// Package registry persists voice records in a single JSON document.
//
// Every mutation is a full read-modify-write of the document. Update serializes those
// cycles with a process-wide mutex, and Save replaces the file atomically so a
// concurrent reader never observes a partially written document.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/fsutil"
)

// File and directory permissions.
const (
	filePermissions = 0o640
	dirPermissions  = 0o750
)

const indent = "  "

// Registry is the durable name-to-record store.
type Registry struct {
	path string
	mu   sync.Mutex
}

// New creates a registry backed by the document at path. The file is created lazily on
// the first save.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the location of the registry document.
func (r *Registry) Path() string {
	return r.path
}

// Load reads the document. A missing document yields an empty mapping; a document that
// cannot be parsed yields core.ErrCorruptRegistry.
func (r *Registry) Load() (*Voices, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewVoices(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to read registry %s: %v", core.ErrIO, r.path, err)
	}

	voices := NewVoices()

	parseErr := json.Unmarshal(data, voices)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrCorruptRegistry, r.path, parseErr)
	}

	return voices, nil
}

// Save replaces the document with voices.
func (r *Registry) Save(voices *Voices) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(voices)
}

// ListNames returns the stored voice names in insertion order.
func (r *Registry) ListNames() ([]string, error) {
	voices, err := r.Load()
	if err != nil {
		return nil, err
	}

	return voices.Names(), nil
}

// Update runs mutate against the current mapping and saves the result, holding the
// registry lock for the whole cycle. If mutate fails nothing is written.
func (r *Registry) Update(mutate func(voices *Voices) error) (*Voices, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	voices, err := r.Load()
	if err != nil {
		return nil, err
	}

	mutateErr := mutate(voices)
	if mutateErr != nil {
		return nil, mutateErr
	}

	saveErr := r.save(voices)
	if saveErr != nil {
		return nil, saveErr
	}

	return voices, nil
}

func (r *Registry) save(voices *Voices) error {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", indent)

	encodeErr := encoder.Encode(voices)
	if encodeErr != nil {
		return fmt.Errorf("failed to encode registry: %w", encodeErr)
	}

	mkdirErr := os.MkdirAll(filepath.Dir(r.path), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("%w: failed to create registry directory: %v", core.ErrIO, mkdirErr)
	}

	writeErr := fsutil.WriteFileAtomic(r.path, filePermissions, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())

		return err
	})
	if writeErr != nil {
		return fmt.Errorf("%w: failed to write registry %s: %v", core.ErrIO, r.path, writeErr)
	}

	return nil
}
