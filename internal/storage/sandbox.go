// Package storage restricts file operations to configured directories so
// relative paths from config or API input cannot escape them.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0750
	filePerm = 0640
)

// wrap annotates err with a short operation label, zeroing the value on
// failure.
func wrap[T any](v T, err error, what string) (T, error) {
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

// wrapErr is wrap for error-only operations.
func wrapErr(err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Sandbox scopes file operations to a base directory. Every method takes
// paths relative to the base and rejects any that would resolve outside it.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a Sandbox rooted at baseDir, creating the directory if
// needed.
func NewSandbox(baseDir string) (*Sandbox, error) {
	absRaw, absErr := filepath.Abs(baseDir)
	absPath, err := wrap(absRaw, absErr, "getting absolute path")
	if err != nil {
		return nil, err
	}
	if err := wrapErr(os.MkdirAll(absPath, dirPerm), "creating base directory"); err != nil {
		return nil, err
	}
	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute path of the sandbox root.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath maps a relative path to an absolute path inside the sandbox.
// Absolute inputs and paths that traverse out of the base are rejected.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", relativePath)
	}

	absRaw, absErr := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(relativePath)))
	absPath, err := wrap(absRaw, absErr, "getting absolute path")
	if err != nil {
		return "", err
	}
	if absPath != s.baseDir && !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", relativePath)
	}
	return absPath, nil
}

// ensureParent creates the parent directory of an already resolved path.
func ensureParent(path string) error {
	return wrapErr(os.MkdirAll(filepath.Dir(path), dirPerm), "creating parent directory")
}

// Exists reports whether a sandboxed path exists.
func (s *Sandbox) Exists(relativePath string) (bool, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// MkdirAll creates a sandboxed directory and any missing parents.
func (s *Sandbox) MkdirAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return wrapErr(os.MkdirAll(path, dirPerm), "creating directory")
}

// WriteFile writes data to a file within the sandbox, creating parent
// directories as needed.
func (s *Sandbox) WriteFile(relativePath string, data []byte) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	return wrapErr(os.WriteFile(path, data, filePerm), "writing file")
}

// ReadFile returns the contents of a sandboxed file.
func (s *Sandbox) ReadFile(relativePath string) ([]byte, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	return wrap(data, err, "reading file")
}

// OpenFile opens a file within the sandbox with the given flags and mode.
// Parent directories are created for write modes.
func (s *Sandbox) OpenFile(relativePath string, flag int, perm os.FileMode) (*os.File, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_CREATE|os.O_WRONLY|os.O_RDWR) != 0 {
		if err := ensureParent(path); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, flag, perm)
	return wrap(f, err, "opening file")
}

// Remove deletes a sandboxed file or empty directory.
func (s *Sandbox) Remove(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return wrapErr(os.Remove(path), "removing path")
}

// RemoveAll removes a path and its contents. The sandbox root itself may
// not be removed.
func (s *Sandbox) RemoveAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if path == s.baseDir {
		return fmt.Errorf("cannot remove sandbox base directory")
	}
	return wrapErr(os.RemoveAll(path), "removing path")
}

// Rename moves a file between two sandbox paths.
func (s *Sandbox) Rename(oldPath, newPath string) error {
	oldAbs, err := s.ResolvePath(oldPath)
	if err != nil {
		return fmt.Errorf("resolving old path: %w", err)
	}
	newAbs, err := s.ResolvePath(newPath)
	if err != nil {
		return fmt.Errorf("resolving new path: %w", err)
	}
	if err := ensureParent(newAbs); err != nil {
		return err
	}
	return wrapErr(os.Rename(oldAbs, newAbs), "renaming file")
}

// stageAndRename writes to a hidden temp file beside targetPath via fill,
// then renames it into place. The temp file is removed on any failure.
func stageAndRename(targetPath string, fill func(*os.File) error) error {
	if err := ensureParent(targetPath); err != nil {
		return err
	}

	dir := filepath.Dir(targetPath)
	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(targetPath), randomHex(8)))

	tempRaw, tempErr := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	tempFile, err := wrap(tempRaw, tempErr, "creating temporary file")
	if err != nil {
		return err
	}

	fillErr := fill(tempFile)
	closeErr := tempFile.Close()
	if fillErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("writing temporary file: %w", fillErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temporary file: %w", closeErr)
	}

	// Rename is atomic within one filesystem.
	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	return nil
}

// AtomicWrite writes data so readers either see the previous content or the
// complete new content, never a partial file.
func (s *Sandbox) AtomicWrite(relativePath string, data []byte) error {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return stageAndRename(targetPath, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// AtomicWriteReader is AtomicWrite for streaming sources.
func (s *Sandbox) AtomicWriteReader(relativePath string, r io.Reader) error {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return stageAndRename(targetPath, func(f *os.File) error {
		_, err := io.Copy(f, r)
		return err
	})
}

// AtomicPublish moves a file from an external absolute path into the
// sandbox. A direct rename is tried first; if the source lives on another
// filesystem the data is staged beside the target and renamed into place.
func (s *Sandbox) AtomicPublish(srcAbsPath, destRelativePath string) error {
	targetPath, err := s.ResolvePath(destRelativePath)
	if err != nil {
		return err
	}
	if err := ensureParent(targetPath); err != nil {
		return err
	}
	if err := os.Rename(srcAbsPath, targetPath); err == nil {
		return nil
	}

	srcRaw, srcErr := os.Open(srcAbsPath)
	srcFile, err := wrap(srcRaw, srcErr, "opening source file")
	if err != nil {
		return err
	}
	defer srcFile.Close()

	return stageAndRename(targetPath, func(f *os.File) error {
		_, err := io.Copy(f, srcFile)
		return err
	})
}

// CreateTemp creates a temporary file under the given sandbox directory
// ("temp" when empty). The caller closes and removes it.
func (s *Sandbox) CreateTemp(dir, pattern string) (*os.File, error) {
	if dir == "" {
		dir = "temp"
	}
	absDir, err := s.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	if err := wrapErr(os.MkdirAll(absDir, dirPerm), "creating temp directory"); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(absDir, pattern)
	return wrap(f, err, "creating temp file")
}

// TempDir returns the sandbox's temp directory path, creating it if needed.
func (s *Sandbox) TempDir() (string, error) {
	tempDir, err := s.ResolvePath("temp")
	if err != nil {
		return "", err
	}
	if err := wrapErr(os.MkdirAll(tempDir, dirPerm), "creating temp directory"); err != nil {
		return "", err
	}
	return tempDir, nil
}

// List returns the entries of a sandboxed directory.
func (s *Sandbox) List(relativePath string) ([]os.DirEntry, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	return wrap(entries, err, "reading directory")
}

// Walk walks the tree under relativePath. The callback receives paths
// relative to the sandbox root.
func (s *Sandbox) Walk(relativePath string, fn filepath.WalkFunc) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	rebase := func(walkPath string, info os.FileInfo, err error) error {
		relPath, relErr := filepath.Rel(s.baseDir, walkPath)
		if relErr != nil {
			relPath = walkPath
		}
		return fn(relPath, info, err)
	}
	return filepath.Walk(path, rebase)
}

// Stat returns file info for a sandboxed path.
func (s *Sandbox) Stat(relativePath string) (os.FileInfo, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	return wrap(info, err, "getting file info")
}

// Size returns a sandboxed file's length in bytes.
func (s *Sandbox) Size(relativePath string) (int64, error) {
	info, err := s.Stat(relativePath)
	if err == nil {
		return info.Size(), nil
	}
	return 0, err
}

// SubSandbox creates a Sandbox rooted at a subdirectory of this one.
func (s *Sandbox) SubSandbox(relativePath string) (*Sandbox, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	return NewSandbox(path)
}

func randomHex(n int) string {
	bytes := make([]byte, n/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(bytes)[:n]
}
