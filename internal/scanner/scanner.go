// Package scanner discovers compilable modules in a project's source tree and
// registers them.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/registry"
)

// Options controls which files count as modules.
type Options struct {
	// SrcDir is the module subtree, relative to the project root.
	SrcDir string
	// Extensions selects files by suffix, e.g. ".js".
	Extensions []string
	// Exclude holds filepath.Match patterns tested against base names.
	Exclude []string
}

// DefaultOptions returns the project module convention: every .js file under src.
func DefaultOptions() Options {
	return Options{
		SrcDir:     "src",
		Extensions: []string{".js"},
	}
}

// ModuleScanner walks the source tree and feeds a registry.
type ModuleScanner struct {
	registry *registry.Registry
	opts     Options
}

// NewModuleScanner creates a scanner that registers into reg.
func NewModuleScanner(reg *registry.Registry, opts Options) *ModuleScanner {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}
	if opts.SrcDir == "" {
		opts.SrcDir = DefaultOptions().SrcDir
	}
	return &ModuleScanner{registry: reg, opts: opts}
}

// Discover lists module files under root/SrcDir in lexicographic order.
// A missing source directory yields no modules.
func Discover(root string, opts Options) ([]string, error) {
	dir := filepath.Join(root, opts.SrcDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.WrapIO(err, errors.ErrCodeReadFailed, "failed to walk source tree", path)
		}

		if d.IsDir() || !hasExtension(d.Name(), opts.Extensions) || excluded(d.Name(), opts.Exclude) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Scan discovers and registers every module, returning their IDs in order.
// The first unreadable file aborts the scan.
func (s *ModuleScanner) Scan() ([]registry.ID, error) {
	files, err := Discover(s.registry.Root(), s.opts)
	if err != nil {
		return nil, err
	}

	ids := make([]registry.ID, 0, len(files))
	for _, file := range files {
		id, err := s.registry.Register(file)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Extensions returns the module extensions in use.
func (s *ModuleScanner) Extensions() []string {
	return s.opts.Extensions
}

// IsModule reports whether a file name matches the module convention.
func (s *ModuleScanner) IsModule(name string) bool {
	base := filepath.Base(name)
	return hasExtension(base, s.opts.Extensions) && !excluded(base, s.opts.Exclude)
}

func hasExtension(name string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
