// Package assets manages the directory of saved reference clips.
//
// Asset paths handed out by the store are slash-separated and relative to the
// application base directory (for example "voices/Maria.wav"), which keeps the
// registry document portable between machines.
package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/fsutil"
)

// File and directory permissions.
const (
	filePermissions = 0o640
	dirPermissions  = 0o750
)

// DefaultExtension is used for sources that carry no extension of their own.
const DefaultExtension = ".wav"

// Error message formats.
const (
	errFmtCreateRoot   = "%w: failed to create assets directory %s: %v"
	errFmtOpenSource   = "%w: failed to open source audio %s: %v"
	errFmtWriteAsset   = "%w: failed to write asset %s: %v"
	errFmtRemoveAsset  = "%w: failed to remove asset %s: %v"
	errFmtOutsideRoot  = "%w: asset path %q is outside the assets directory"
	errFmtRelativePath = "%w: cannot express %s relative to %s: %v"
	errFmtReservedName = "%w: voice %q would overwrite %s"
)

// Store holds reference clips under a fixed root directory.
type Store struct {
	baseDir  string
	root     string
	reserved []string
}

// New creates a Store rooted at root. Asset paths are expressed relative to baseDir.
func New(baseDir, root string) *Store {
	return &Store{
		baseDir: filepath.Clean(baseDir),
		root:    filepath.Clean(root),
	}
}

// Root returns the directory holding the assets.
func (s *Store) Root() string {
	return s.root
}

// Reserve marks paths inside the assets directory that no asset may ever replace,
// such as the registry document.
func (s *Store) Reserve(paths ...string) {
	for _, path := range paths {
		s.reserved = append(s.reserved, filepath.Clean(path))
	}
}

// EnsureRoot creates the assets directory if it does not exist yet.
func (s *Store) EnsureRoot() error {
	err := os.MkdirAll(s.root, dirPermissions)
	if err != nil {
		return fmt.Errorf(errFmtCreateRoot, core.ErrIO, s.root, err)
	}

	return nil
}

// FileName derives the stored filename for a voice from its name and source file.
func FileName(name, sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = DefaultExtension
	}

	return name + ext
}

// Store copies sourcePath into the assets directory under a filename derived from
// name, replacing any previous file of the same name, and returns its asset path.
func (s *Store) Store(name, sourcePath string) (string, error) {
	destPath := filepath.Join(s.root, FileName(name, sourcePath))

	for _, reserved := range s.reserved {
		if strings.EqualFold(destPath, reserved) {
			return "", fmt.Errorf(errFmtReservedName, core.ErrValidation, name, filepath.Base(reserved))
		}
	}

	ensureErr := s.EnsureRoot()
	if ensureErr != nil {
		return "", ensureErr
	}

	copyErr := copyFileAtomic(sourcePath, destPath)
	if copyErr != nil {
		return "", copyErr
	}

	rel, err := filepath.Rel(s.baseDir, destPath)
	if err != nil {
		return "", fmt.Errorf(errFmtRelativePath, core.ErrIO, destPath, s.baseDir, err)
	}

	return filepath.ToSlash(rel), nil
}

// Remove deletes the asset. A missing file is not an error.
func (s *Store) Remove(assetPath string) error {
	absPath, err := s.within(assetPath)
	if err != nil {
		return err
	}

	removeErr := os.Remove(absPath)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf(errFmtRemoveAsset, core.ErrIO, assetPath, removeErr)
	}

	return nil
}

// Resolve joins an asset path with the base directory.
func (s *Store) Resolve(assetPath string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(assetPath))
}

// Exists reports whether the asset file is present.
func (s *Store) Exists(assetPath string) bool {
	info, err := os.Stat(s.Resolve(assetPath))

	return err == nil && info.Mode().IsRegular()
}

// within resolves assetPath and refuses anything outside the assets directory.
func (s *Store) within(assetPath string) (string, error) {
	absPath := s.Resolve(assetPath)

	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf(errFmtOutsideRoot, core.ErrIO, assetPath)
	}

	return absPath, nil
}

// copyFileAtomic copies src to dst through a temp file in dst's directory, so a
// failed copy never leaves a truncated asset behind.
func copyFileAtomic(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf(errFmtOpenSource, core.ErrIO, src, err)
	}
	defer source.Close()

	writeErr := fsutil.WriteFileAtomic(dst, filePermissions, func(w io.Writer) error {
		_, copyErr := io.Copy(w, source)

		return copyErr
	})
	if writeErr != nil {
		return fmt.Errorf(errFmtWriteAsset, core.ErrIO, dst, writeErr)
	}

	return nil
}
