package ipc

import (
	"encoding/json"
	"os"
)

// writeJSONAtomic marshals v and replaces path in one step. The temp file is
// created in the same directory so the rename stays on one filesystem.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic writes to a temporary file and renames it over path. The
// rename is atomic on POSIX systems; when it fails the temp file is removed
// and the original error is returned.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
