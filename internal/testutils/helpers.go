// Package testutils lays out toast projects on disk for tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Project is a temporary site: modules live under Input/src and browser
// artifacts are written to Output.
type Project struct {
	Root   string
	Input  string
	Output string
}

// CreateTempProject creates an empty project whose output directory sits
// beside the input directory.
func CreateTempProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()

	p := &Project{
		Root:   root,
		Input:  filepath.Join(root, "site"),
		Output: filepath.Join(root, "public"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(p.Input, "src"), 0o755))
	return p
}

// WriteModule writes a module under the input directory. id is a
// slash-separated project-relative path such as "src/pages/index.js".
func (p *Project) WriteModule(t *testing.T, id, content string) string {
	t.Helper()
	path := filepath.Join(p.Input, filepath.FromSlash(id))
	WriteFile(t, path, content)
	return path
}

// WriteModules writes every id/content pair.
func (p *Project) WriteModules(t *testing.T, modules map[string]string) {
	t.Helper()
	for id, content := range modules {
		p.WriteModule(t, id, content)
	}
}

// WriteImportMap writes the import map where the build looks for it.
func (p *Project) WriteImportMap(t *testing.T, content string) string {
	t.Helper()
	path := p.ImportMapPath()
	WriteFile(t, path, content)
	return path
}

// ImportMapPath returns the default import map location.
func (p *Project) ImportMapPath() string {
	return filepath.Join(p.Output, "web_modules", "import-map.json")
}

// BrowserArtifact returns where the browser build of id is written.
func (p *Project) BrowserArtifact(id string) string {
	return filepath.Join(p.Output, filepath.FromSlash(id))
}

// ServerArtifact returns where the server build of id is written.
func (p *Project) ServerArtifact(id string) string {
	return filepath.Join(p.Input, ".tmp", filepath.FromSlash(id))
}

// WriteFile creates path and its parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
