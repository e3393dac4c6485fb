// Package compiler produces the browser and server variants of a source module.
//
// Both variants are the module's own text with only the specifier literals of
// its imports, re-exports, dynamic imports and require calls replaced; esbuild
// checks the syntax first. The variants differ in how specifiers are
// rewritten: the browser has no package resolution of its own, so every
// specifier must become a concrete URL (relative module links or import map
// targets), while the server runtime resolves bare specifiers itself and only
// needs explicit relative paths.
package compiler

import (
	"bytes"
	"sort"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/importmap"
	"github.com/toastdotdev/toast/internal/registry"
)

// FormatVersion changes whenever the emitted code for identical input could
// change, invalidating persisted artifacts.
const FormatVersion = "toast-compiler/2"

// Target selects which variant to generate.
type Target int

const (
	TargetBrowser Target = iota
	TargetServer
)

// String returns the string representation of the Target
func (t Target) String() string {
	switch t {
	case TargetBrowser:
		return "browser"
	case TargetServer:
		return "server"
	default:
		return "unknown"
	}
}

// ModuleSet reports which source IDs exist in the project.
type ModuleSet interface {
	Has(id registry.ID) bool
}

// Options configures a Compiler.
type Options struct {
	// Extensions are tried, in order, to complete extensionless relative imports.
	Extensions []string
}

// Compiler rewrites and re-emits modules for both targets.
type Compiler struct {
	modules    ModuleSet
	importMap  *importmap.ImportMap
	extensions []string
}

// Artifacts holds both generated variants of one module.
type Artifacts struct {
	Browser []byte
	Server  []byte
}

// New creates a compiler over the given module set and import map.
func New(modules ModuleSet, importMap *importmap.ImportMap, opts Options) *Compiler {
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = []string{".js"}
	}
	return &Compiler{
		modules:    modules,
		importMap:  importMap,
		extensions: extensions,
	}
}

// ImportMap returns the map used for browser rewrites.
func (c *Compiler) ImportMap() *importmap.ImportMap {
	return c.importMap
}

// CompileBoth generates the browser and server variants of src.
func (c *Compiler) CompileBoth(src *registry.Source) (Artifacts, error) {
	browser, err := c.Compile(src, TargetBrowser)
	if err != nil {
		return Artifacts{}, err
	}
	server, err := c.Compile(src, TargetServer)
	if err != nil {
		return Artifacts{}, err
	}
	return Artifacts{Browser: browser, Server: server}, nil
}

// Compile checks the syntax of src and rewrites every import, re-export,
// dynamic import and require specifier for target. Everything else in the
// module is emitted unchanged.
func (c *Compiler) Compile(src *registry.Source, target Target) ([]byte, error) {
	if src == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "nil source", nil)
	}
	if err := checkSyntax(src); err != nil {
		return nil, err
	}

	var (
		out      bytes.Buffer
		failures resolveFailures
		last     int
	)
	out.Grow(len(src.Content))
	for _, ref := range FindImports(src.Content) {
		rewritten, err := c.Rewrite(src.ID, ref.Specifier, target)
		if err != nil {
			failures.add(ref.Specifier, err)
			continue
		}
		if rewritten == ref.Specifier {
			continue
		}
		out.Write(src.Content[last:ref.Start])
		out.WriteString(quoteLiteral(rewritten, ref.Quote))
		last = ref.End
	}
	if err := failures.first(); err != nil {
		return nil, err
	}
	out.Write(src.Content[last:])
	return out.Bytes(), nil
}

// checkSyntax parses src with esbuild without bundling, so only genuine
// syntax errors are reported.
func checkSyntax(src *registry.Source) error {
	result := api.Transform(string(src.Content), api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: string(src.ID),
		Target:     api.ESNext,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return parseError(src, result.Errors[0])
	}
	return nil
}

func parseError(src *registry.Source, msg api.Message) error {
	file := src.Path
	if file == "" {
		file = string(src.ID)
	}
	err := errors.NewParseError(errors.ErrCodeSyntax, msg.Text, nil).WithSource(string(src.ID))
	if msg.Location != nil {
		// esbuild columns are zero-based
		err.WithLocation(file, msg.Location.Line, msg.Location.Column+1)
		if msg.Location.LineText != "" {
			err.WithContext("line_text", msg.Location.LineText)
		}
	} else {
		err.FilePath = file
	}
	return err
}

// resolveFailures keeps the first rewrite error per specifier.
type resolveFailures struct {
	errs map[string]error
}

func (f *resolveFailures) add(specifier string, err error) {
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if _, ok := f.errs[specifier]; !ok {
		f.errs[specifier] = err
	}
}

// first returns the failure with the smallest specifier, for stable diagnostics.
func (f *resolveFailures) first() error {
	if len(f.errs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f.errs))
	for k := range f.errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return f.errs[keys[0]]
}
