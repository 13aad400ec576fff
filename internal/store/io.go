package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// readFile returns nil, nil when path does not exist.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return b, nil
}

// loadJSON decodes path into a fresh T. A missing file yields the zero T.
func loadJSON[T any](path string) (T, error) {
	var out T
	b, err := readFile(path)
	if err != nil || b == nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return out, nil
}

// saveJSON encodes v and replaces path with it.
func saveJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", filepath.Base(path))
	}
	return writeFile(path, b, 0o600)
}

// writeFile replaces path atomically: readers see the old contents or the
// new ones, never a mix.
func writeFile(path string, b []byte, mode os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create store directory")
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(b); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err = f.Chmod(mode); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err = f.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "replace "+filepath.Base(path))
}
