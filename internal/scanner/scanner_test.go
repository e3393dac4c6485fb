package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/registry"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiscoverSelectsModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/pages/index.js", "")
	writeFile(t, root, "src/pages/util.js", "")
	writeFile(t, root, "src/styles.css", "")
	writeFile(t, root, "src/README.md", "")
	writeFile(t, root, "src/deep/a/b/c.js", "")
	writeFile(t, root, "outside.js", "")

	files, err := Discover(root, DefaultOptions())
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"src/deep/a/b/c.js", "src/pages/index.js", "src/pages/util.js"}, rel)
}

func TestDiscoverMissingSrcDir(t *testing.T) {
	files, err := Discover(t.TempDir(), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverExcludeAndExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.js", "")
	writeFile(t, root, "src/a.test.js", "")
	writeFile(t, root, "src/b.mjs", "")

	files, err := Discover(root, Options{
		SrcDir:     "src",
		Extensions: []string{".js", ".mjs"},
		Exclude:    []string{"*.test.js"},
	})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.js", filepath.Base(files[0]))
	assert.Equal(t, "b.mjs", filepath.Base(files[1]))
}

func TestScanRegistersByRelativePath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.js", "import './util.js';")
	writeFile(t, root, "src/util.js", "export {};")

	reg := registry.NewRegistry(root)
	s := NewModuleScanner(reg, Options{})

	ids, err := s.Scan()
	require.NoError(t, err)
	assert.Equal(t, []registry.ID{"src/index.js", "src/util.js"}, ids)
	assert.Equal(t, 2, reg.Len())

	src, ok := reg.Get("src/index.js")
	require.True(t, ok)
	assert.Equal(t, "import './util.js';", string(src.Content))
}

func TestScanAbortsOnUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "src/ok.js", "")
	bad := writeFile(t, root, "src/secret.js", "")
	require.NoError(t, os.Chmod(bad, 0o000))
	t.Cleanup(func() { _ = os.Chmod(bad, 0o644) })

	reg := registry.NewRegistry(root)
	_, err := NewModuleScanner(reg, DefaultOptions()).Scan()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.Contains(t, err.Error(), "secret.js")
}

func TestIsModule(t *testing.T) {
	s := NewModuleScanner(registry.NewRegistry(t.TempDir()), Options{Exclude: []string{"*.spec.js"}})
	assert.True(t, s.IsModule("/x/src/a.js"))
	assert.False(t, s.IsModule("/x/src/a.spec.js"))
	assert.False(t, s.IsModule("/x/src/a.ts"))
	assert.Equal(t, []string{".js"}, s.Extensions())
}
