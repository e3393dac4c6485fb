package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastdotdev/toast/internal/errors"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDeriveID(t *testing.T) {
	root := t.TempDir()

	id, err := DeriveID(root, filepath.Join(root, "src", "pages", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, ID("src/pages/index.js"), id)
	assert.Equal(t, "src/pages", id.Dir())

	_, err = DeriveID(root, filepath.Join(filepath.Dir(root), "elsewhere.js"))
	assert.Error(t, err)

	_, err = DeriveID(root, root)
	assert.Error(t, err)
}

func TestRegisterReadsEagerly(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "src/index.js", "export const a = 1;\n")

	reg := NewRegistry(root)
	id, err := reg.Register(path)
	require.NoError(t, err)
	assert.Equal(t, ID("src/index.js"), id)

	// Changing the file after registration must not change the stored record.
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))

	src, ok := reg.Get(id)
	require.True(t, ok)
	assert.Equal(t, "export const a = 1;\n", string(src.Content))
	assert.Equal(t, KindFile, src.Kind)
	assert.Equal(t, ContentHash([]byte("export const a = 1;\n")), src.Hash)
	assert.True(t, filepath.IsAbs(src.Path))
}

func TestRegisterIsIdempotentPerPath(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "src/a.js", "one")

	reg := NewRegistry(root)
	_, err := reg.Register(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	id, err := reg.Register(path)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len())
	src, _ := reg.Get(id)
	assert.Equal(t, "two", string(src.Content))
}

func TestRegisterMissingFile(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root)

	_, err := reg.Register(filepath.Join(root, "src", "gone.js"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.Contains(t, err.Error(), "gone.js")
	assert.Equal(t, 0, reg.Len())
}

func TestSetVirtualSource(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	src := NewVirtualSource("src/generated.js", []byte("export default 1"))
	reg.Set(src.ID, src)

	got, ok := reg.Get("src/generated.js")
	require.True(t, ok)
	assert.Equal(t, KindVirtual, got.Kind)
	assert.Equal(t, "virtual", got.Kind.String())
	assert.True(t, reg.Has("src/generated.js"))

	reg.Remove("src/generated.js")
	assert.False(t, reg.Has("src/generated.js"))
}

func TestIDsSortedAndDigest(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	for _, id := range []ID{"src/c.js", "src/a.js", "src/b/index.js"} {
		reg.Set(id, NewVirtualSource(id, nil))
	}

	assert.Equal(t, []ID{"src/a.js", "src/b/index.js", "src/c.js"}, reg.IDs())

	other := NewRegistry(t.TempDir())
	for _, id := range []ID{"src/b/index.js", "src/a.js", "src/c.js"} {
		other.Set(id, NewVirtualSource(id, []byte("different content")))
	}
	assert.Equal(t, reg.Digest(), other.Digest(), "digest depends on the id set only")

	other.Set("src/d.js", NewVirtualSource("src/d.js", nil))
	assert.NotEqual(t, reg.Digest(), other.Digest())
}

func TestConcurrentAccess(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := ID(filepath.ToSlash(filepath.Join("src", string(rune('a'+i%26))+".js")))
			reg.Set(id, NewVirtualSource(id, []byte{byte(i)}))
		}(i)
		go func() {
			defer wg.Done()
			_ = reg.IDs()
			_ = reg.Digest()
		}()
	}
	wg.Wait()
	assert.Equal(t, 26, reg.Len())
}
