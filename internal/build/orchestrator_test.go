package build

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastdotdev/toast/internal/cache"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/session"
	"github.com/toastdotdev/toast/internal/testutils"
)

type project struct {
	*testutils.Project
	input  string
	output string
}

func newProject(t *testing.T, importMap string, files map[string]string) *project {
	t.Helper()
	tp := testutils.CreateTempProject(t)
	tp.WriteModules(t, files)
	if importMap != "" {
		tp.WriteImportMap(t, importMap)
	}
	return &project{Project: tp, input: tp.Input, output: tp.Output}
}

func (p *project) orchestrator(mutate ...func(*Options)) *Orchestrator {
	opts := DefaultOptions()
	opts.InputDir = p.input
	opts.OutputDir = p.output
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts, nil)
}

// produce sends payloads to the next build and then ends data sourcing.
func produce(t *testing.T, mgr *session.Manager, payloads ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		for _, p := range payloads {
			assert.NoError(t, mgr.SetDataForSlug(ctx, []byte(p)))
		}
		assert.NoError(t, mgr.DoneSourcingData(ctx))
	}()
}

const lodashMap = `{"imports": {"lodash": "/web_modules/lodash.js"}}`

func TestRunRewritesPerTarget(t *testing.T) {
	p := newProject(t, lodashMap, map[string]string{
		"src/index.js": "import { x } from \"lodash\";\nconsole.log(x);\n",
	})
	mgr := session.NewManager()
	produce(t, mgr)

	result, err := p.orchestrator().Run(context.Background(), mgr)
	require.NoError(t, err)

	assert.Equal(t, []string{"/src/index.js"}, result.Modules)

	browser := testutils.ReadFile(t, p.BrowserArtifact("src/index.js"))
	assert.Contains(t, browser, `"/web_modules/lodash.js"`)

	server := testutils.ReadFile(t, p.ServerArtifact("src/index.js"))
	assert.Contains(t, server, `"lodash"`)
	assert.NotContains(t, server, "/web_modules/")
}

func TestRunLinksRelativeImports(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, map[string]string{
		"src/pages/index.js":      "import { helper } from \"./util\";\nimport \"../components/nav.js\";\nconsole.log(helper);\n",
		"src/pages/util.js":       "export const helper = 1;\n",
		"src/components/nav.js":   "export {};\n",
		"src/components/notes.md": "not a module",
	})
	mgr := session.NewManager()
	produce(t, mgr)

	result, err := p.orchestrator().Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/components/nav.js", "/src/pages/index.js", "/src/pages/util.js"}, result.Modules)

	for _, path := range []string{
		p.BrowserArtifact("src/pages/index.js"),
		p.ServerArtifact("src/pages/index.js"),
	} {
		code := testutils.ReadFile(t, path)
		assert.Contains(t, code, `"./util.js"`, path)
		assert.Contains(t, code, `"../components/nav.js"`, path)
	}
	assert.NoFileExists(t, filepath.Join(p.output, "src", "components", "notes.md"))
}

func TestRunUnresolvedSpecifierWritesNothing(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, map[string]string{
		"src/a.js":    "import \"zzz-missing\";\n",
		"src/b.js":    "import \"aaa-missing\";\n",
		"src/good.js": "export const ok = true;\n",
	})
	mgr := session.NewManager()
	produce(t, mgr)

	result, err := p.orchestrator().Run(context.Background(), mgr)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsResolveError(err))
	assert.Contains(t, err.Error(), "src/a.js", "the smallest failing module is reported")
	assert.Contains(t, err.Error(), "zzz-missing")

	assert.NoDirExists(t, filepath.Join(p.output, "src"))
	assert.NoDirExists(t, filepath.Join(p.input, ".tmp", "src"))
}

func TestRunSyntaxError(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, map[string]string{
		"src/broken.js": "export const = 1;\n",
	})
	mgr := session.NewManager()
	produce(t, mgr)

	_, err := p.orchestrator().Run(context.Background(), mgr)
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
	assert.Contains(t, err.Error(), "src/broken.js")
}

func TestRunMissingImportMap(t *testing.T) {
	p := newProject(t, "", map[string]string{
		"src/index.js": "export {};\n",
	})
	mgr := session.NewManager()

	_, err := p.orchestrator().Run(context.Background(), mgr)
	require.Error(t, err)

	var te *errors.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errors.ErrCodeImportMapMissing, te.Code)
	assert.Contains(t, err.Error(), "import-map.json")

	assert.DirExists(t, p.output)
	assert.NoDirExists(t, filepath.Join(p.input, ".tmp"), "staging must not be created before the import map loads")
	assert.Nil(t, mgr.Current(), "the session is released after a failed run")
}

func TestRunCollectsRoutesInOrder(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, nil)
	mgr := session.NewManager()
	produce(t, mgr,
		`{"slug": "a", "component": {"mode": "source", "value": "export default 1"}}`,
		`{"slug": "/b/"}`,
		`{"slug": "//c", "data": {"title": "C"}}`,
	)

	result, err := p.orchestrator().Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/c"}, result.Slugs)
	require.Len(t, result.Routes, 3)
	assert.JSONEq(t, `{"title": "C"}`, string(result.Routes[2].Data))
	assert.Empty(t, result.Modules)
}

func TestRunWithNoRoutes(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, map[string]string{"src/index.js": "export {};\n"})
	mgr := session.NewManager()
	produce(t, mgr)

	result, err := p.orchestrator().Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.NotNil(t, result.Slugs)
	assert.Empty(t, result.Slugs)
	assert.Len(t, result.Modules, 1)
}

func TestRunIsIdempotent(t *testing.T) {
	p := newProject(t, lodashMap, map[string]string{
		"src/index.js":    "import { x } from \"lodash\";\nimport \"./lib/util.js\";\nconsole.log(x);\n",
		"src/lib/util.js": "export const util = 1;\n",
	})
	mgr := session.NewManager()
	o := p.orchestrator()

	produce(t, mgr)
	_, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	first := testutils.ReadFile(t, p.BrowserArtifact("src/index.js"))
	firstServer := testutils.ReadFile(t, p.ServerArtifact("src/index.js"))

	produce(t, mgr)
	_, err = o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, first, testutils.ReadFile(t, p.BrowserArtifact("src/index.js")))
	assert.Equal(t, firstServer, testutils.ReadFile(t, p.ServerArtifact("src/index.js")))

	metrics := o.Metrics().Snapshot()
	assert.Equal(t, int64(2), metrics.TotalBuilds)
	assert.Equal(t, int64(2), metrics.SuccessfulBuilds)
	assert.Equal(t, int64(4), metrics.ModulesCompiled)
}

func TestRunReusesPersistedArtifacts(t *testing.T) {
	p := newProject(t, lodashMap, map[string]string{
		"src/index.js": "import { x } from \"lodash\";\nconsole.log(x);\n",
	})
	store, err := cache.NewDiskStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	o := p.orchestrator(func(opts *Options) { opts.Store = store })
	mgr := session.NewManager()

	produce(t, mgr)
	first, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Stats.Misses)
	assert.Equal(t, int64(2), first.Stats.Stored)

	// A new orchestrator starts with an empty memo, as a new invocation does.
	o = p.orchestrator(func(opts *Options) { opts.Store = store })
	produce(t, mgr)
	second, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Stats.Misses)
	assert.Equal(t, int64(2), second.Stats.StoreHits)

	// Changing the import map invalidates browser artifacts only.
	p.WriteImportMap(t, `{"imports": {"lodash": "/web_modules/lodash-es.js"}}`)
	o = p.orchestrator(func(opts *Options) { opts.Store = store })
	produce(t, mgr)
	third, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.Stats.Misses)
	assert.Equal(t, int64(1), third.Stats.StoreHits)
	assert.Contains(t, testutils.ReadFile(t, p.BrowserArtifact("src/index.js")), "/web_modules/lodash-es.js")
}

func TestRunReusesMemoAcrossRuns(t *testing.T) {
	p := newProject(t, lodashMap, map[string]string{
		"src/index.js": "import { x } from \"lodash\";\nconsole.log(x);\n",
	})
	o := p.orchestrator()
	mgr := session.NewManager()

	produce(t, mgr)
	first, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Stats.Misses)

	produce(t, mgr)
	second, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Stats.Hits)
	assert.Zero(t, second.Stats.Misses)
	assert.Zero(t, second.Stats.StoreHits)

	p.WriteModule(t, "src/index.js", "import { x } from \"lodash\";\nconsole.log(x, 2);\n")
	produce(t, mgr)
	third, err := o.Run(context.Background(), mgr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Stats.Misses, "edited modules are compiled again")
	assert.Zero(t, third.Stats.Hits)
	assert.Contains(t, testutils.ReadFile(t, p.BrowserArtifact("src/index.js")), "console.log(x, 2)")
}

func TestRunRejectsConcurrentBuild(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, nil)
	mgr := session.NewManager()
	held, err := mgr.Begin()
	require.NoError(t, err)
	defer mgr.Finish(held)

	_, err = p.orchestrator().Run(context.Background(), mgr)
	assert.ErrorIs(t, err, session.ErrBuildInFlight)
}

func TestRunDrainTimeout(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, nil)
	mgr := session.NewManager()
	o := p.orchestrator(func(opts *Options) { opts.DrainTimeout = 20 * time.Millisecond })

	_, err := o.Run(context.Background(), mgr)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var te *errors.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errors.ErrCodeDrainTimeout, te.Code)
	assert.Equal(t, int64(1), o.Metrics().Snapshot().FailedBuilds)
}

func TestIncremental(t *testing.T) {
	p := newProject(t, `{"imports": {}}`, nil)
	mgr := session.NewManager()
	o := p.orchestrator()

	produce(t, mgr, `{"slug": "/x"}`)
	assert.Equal(t, []string{"/x"}, Incremental(context.Background(), o, mgr))

	broken := newProject(t, "", nil)
	slugs := Incremental(context.Background(), broken.orchestrator(), mgr)
	assert.NotNil(t, slugs)
	assert.Empty(t, slugs)
}

func TestNewAppliesDefaults(t *testing.T) {
	o := New(Options{Workers: -1}, nil)
	opts := o.Options()
	assert.Equal(t, "public", opts.OutputDir)
	assert.Equal(t, "src", opts.SrcDir)
	assert.Equal(t, ".tmp", opts.TmpDir)
	assert.Equal(t, "web_modules/import-map.json", opts.ImportMap)
	assert.Equal(t, []string{".js"}, opts.Extensions)
	assert.Equal(t, 4, opts.Workers)
}
