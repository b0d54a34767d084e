package environment

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ginja-dev/ginja/internal/errors"
)

// FSLoader loads templates from a directory tree. Template names are
// slash-separated paths relative to the root; an empty extension list
// means any file qualifies.
type FSLoader struct {
	Root       string
	Extensions []string
}

// NewFSLoader returns a loader rooted at dir, restricted to the given
// file extensions (with or without leading dot).
func NewFSLoader(dir string, extensions ...string) *FSLoader {
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &FSLoader{Root: dir, Extensions: exts}
}

func (l *FSLoader) allowed(name string) bool {
	if len(l.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range l.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Load reads the named template from the tree.
func (l *FSLoader) Load(name string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", "", errors.NewNotFound("template name escapes the root: " + name)
	}
	if !l.allowed(clean) {
		return "", "", errors.NewNotFound("not a template file: " + name)
	}
	path := filepath.Join(l.Root, clean)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", errors.NewNotFound("template not found: " + name)
		}
		return "", "", errors.NewIO("reading template "+name, err)
	}
	return string(data), path, nil
}

// List walks the tree and returns all template names, sorted.
func (l *FSLoader) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !l.allowed(path) {
			return nil
		}
		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("listing templates under "+l.Root, err)
	}
	sort.Strings(names)
	return names, nil
}
