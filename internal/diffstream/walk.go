package diffstream

import (
	"os"
	"path/filepath"
)

// walkDirs calls fn for root and every subdirectory beneath it,
// skipping .git entirely.
func walkDirs(root string, fn func(dir string) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return fn(path)
	})
}
