package securestore

import (
	"os"
	"path/filepath"
)

// ReadFile returns the plaintext content of path. When secret is set the
// file must be sealed; when it is empty the raw bytes are returned.
// A missing file yields (nil, nil).
func ReadFile(path, secret string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 || secret == "" {
		return raw, nil
	}
	return Open(secret, raw, []byte(filepath.Base(path)))
}

// WriteFileAtomic seals payload when secret is set and replaces path via a
// temporary file and rename, so readers never observe a partial snapshot.
func WriteFileAtomic(path, secret string, payload []byte) error {
	data := payload
	if secret != "" {
		sealed, err := Seal(secret, payload, []byte(filepath.Base(path)))
		if err != nil {
			return err
		}
		data = sealed
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
