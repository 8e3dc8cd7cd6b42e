// Package static holds the default asset bundle: the site stylesheet and the
// client script for navigation, search and live reload.
package static

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

//go:embed css/*.css js/*.js
var bundle embed.FS

// Files returns the embedded bundle rooted at its css/ and js/ directories.
func Files() fs.FS {
	return bundle
}

// HTTP serves the embedded bundle.
func HTTP() http.FileSystem {
	return http.FS(bundle)
}

// Sync copies every regular file of src into dest, keeping relative paths.
// Irregular entries such as symlinks are skipped.
func Sync(src fs.FS, dest string) error {
	return fs.WalkDir(src, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(name))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755) //nolint:gosec // site output is world readable
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := fs.ReadFile(src, name)
		if err != nil {
			return fmt.Errorf("read asset %s: %w", name, err)
		}
		return os.WriteFile(target, data, 0o644) //nolint:gosec // site output is world readable
	})
}
