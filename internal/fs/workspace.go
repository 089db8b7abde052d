// Package fs provides path-jailed access to a workspace directory on the
// host. Every sandbox-relative path is resolved against the root and may not
// escape it, including via symlinks.
package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal not allowed")
	ErrNotFound      = errors.New("file or directory not found")
)

// Info is metadata for one workspace entry. Path is workspace-relative and
// always starts with "/".
type Info struct {
	Name  string
	Path  string
	Size  int64
	IsDir bool
}

// Workspace is a directory jail. All methods accept workspace-relative paths
// ("/" addresses the root itself).
type Workspace struct {
	root string
}

// New creates a workspace rooted at dir, creating it if needed. Symlinks in
// the root are resolved up front so later containment checks compare real
// paths.
func New(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, err
	}
	return &Workspace{root: root}, nil
}

// Root returns the absolute host path of the workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Abs resolves a workspace-relative path to an absolute host path, rejecting
// anything that would land outside the root.
func (w *Workspace) Abs(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", ErrPathTraversal
	}
	// Clean("/"+path) yields a rooted, normalized path, so the join cannot
	// climb above root. Symlinks inside the tree still can, which resolve
	// checks when the target exists.
	full := filepath.Join(w.root, filepath.Clean("/"+path))
	return full, nil
}

// resolve is Abs plus a symlink-containment check for existing paths.
func (w *Workspace) resolve(path string) (string, error) {
	full, err := w.Abs(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if os.IsNotExist(err) {
			// New file: verify the nearest existing ancestor instead.
			return full, w.checkAncestor(filepath.Dir(full))
		}
		return "", err
	}
	if !w.contains(real) {
		return "", ErrPathTraversal
	}
	return real, nil
}

func (w *Workspace) checkAncestor(dir string) error {
	for {
		real, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if !w.contains(real) {
				return ErrPathTraversal
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ErrPathTraversal
		}
		dir = parent
	}
}

func (w *Workspace) contains(real string) bool {
	return real == w.root || strings.HasPrefix(real, w.root+string(filepath.Separator))
}

// rel converts a resolved host path back to a workspace-relative one.
func (w *Workspace) rel(full string) string {
	r, err := filepath.Rel(w.root, full)
	if err != nil || r == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(r)
}

// Read returns the contents of a file.
func (w *Workspace) Read(path string) ([]byte, error) {
	full, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write writes a file, creating parent directories as needed and truncating
// any existing content.
func (w *Workspace) Write(path string, content []byte) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

// List returns the entries of a directory.
func (w *Workspace) List(path string) ([]Info, error) {
	full, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:  entry.Name(),
			Path:  w.rel(filepath.Join(full, entry.Name())),
			Size:  fi.Size(),
			IsDir: entry.IsDir(),
		})
	}
	return infos, nil
}

// Stat returns metadata for one path.
func (w *Workspace) Stat(path string) (Info, error) {
	full, err := w.resolve(path)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, err
	}
	return Info{
		Name:  fi.Name(),
		Path:  w.rel(full),
		Size:  fi.Size(),
		IsDir: fi.IsDir(),
	}, nil
}

// Mkdir creates a directory. With recursive set, missing parents are created
// and an existing directory is not an error.
func (w *Workspace) Mkdir(path string, recursive bool) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}
	if recursive {
		return os.MkdirAll(full, 0o755)
	}
	return os.Mkdir(full, 0o755)
}

// Delete removes a file or directory tree. The root itself cannot be
// deleted.
func (w *Workspace) Delete(path string) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}
	if full == w.root {
		return errors.New("cannot delete workspace root")
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return os.RemoveAll(full)
}
