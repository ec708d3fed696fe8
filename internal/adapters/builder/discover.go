package builder

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindDockerBuilds returns every directory under root containing a Dockerfile.
func FindDockerBuilds(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "Dockerfile" {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}
