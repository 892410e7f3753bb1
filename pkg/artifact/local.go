package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Local implements Store on the local filesystem. Each artifact lives in a
// single file named by its ref under the root directory.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates a Local store rooted at dir.
// The directory is created (with parents) if it does not already exist.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) path(ref string) string {
	return filepath.Join(l.root, ref)
}

// Put writes data to a temp file in the root directory and renames it into
// place. Rename is atomic on POSIX filesystems, so a concurrent Get either
// misses or reads the whole artifact. Re-putting existing content is a no-op.
func (l *Local) Put(_ context.Context, data []byte) (string, error) {
	ref := Ref(data)
	full := l.path(ref)

	if _, err := os.Stat(full); err == nil {
		return ref, nil
	}

	tmp, err := os.CreateTemp(l.root, ".put-*")
	if err != nil {
		return "", fmt.Errorf("artifact: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("artifact: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("artifact: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("artifact: rename: %w", err)
	}
	return ref, nil
}

func (l *Local) Get(_ context.Context, ref string) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, err
}

func (l *Local) Exists(_ context.Context, ref string) (bool, error) {
	if err := checkRef(ref); err != nil {
		return false, err
	}
	_, err := os.Stat(l.path(ref))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Delete(_ context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	err := os.Remove(l.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Refs lists artifact files in the root directory, skipping temp files
// left by interrupted Puts and anything that is not a well-formed ref.
func (l *Local) Refs(_ context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(l.root)
		if err != nil {
			yield("", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if checkRef(e.Name()) != nil {
				continue
			}
			if !yield(e.Name(), nil) {
				return
			}
		}
	}
}
