package cmd

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toastdotdev/toast/internal/build"
	"github.com/toastdotdev/toast/internal/cache"
	"github.com/toastdotdev/toast/internal/config"
	"github.com/toastdotdev/toast/internal/feed"
	"github.com/toastdotdev/toast/internal/logging"
	"github.com/toastdotdev/toast/internal/session"
)

type buildFlags struct {
	ProjectFlags
	OutputFlags
	Routes string
	Listen string
}

func newBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:     "build [input_dir] [output_dir]",
		Aliases: []string{"b"},
		Short:   "Compile every module for the browser and the server",
		Long: `Compile every module under <input_dir>/src twice. Browser modules are
written to <output_dir>/src with bare imports rewritten through
<output_dir>/web_modules/import-map.json; server modules are written to
<input_dir>/.tmp/src.

Route data is read from --routes (newline-delimited JSON, "-" for stdin)
or accepted over HTTP and websocket with --listen. Without either, the
build proceeds with no routes.

Examples:
  toast build                              # Build . into ./public
  toast build site dist                    # Build ./site into ./dist
  node toast.js | toast build --routes -   # Read route data from stdin
  toast build --listen 127.0.0.1:7777      # Accept route data over HTTP
  toast build --format json                # Report the result as JSON`,
		Args: cobra.MaximumNArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindDirs(args)
			if err := bindFlags(cmd, projectBindings...); err != nil {
				return err
			}
			if err := bindFlags(cmd, flagBinding{"listen", "feed.listen"}); err != nil {
				return err
			}
			return validateFormat(flags.Format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, flags)
		},
	}

	addProjectFlags(cmd.Flags(), &flags.ProjectFlags)
	addOutputFlags(cmd.Flags(), &flags.OutputFlags)
	cmd.Flags().StringVar(&flags.Routes, "routes", "", "Newline-delimited JSON route data file, or - for stdin")
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "Address to accept route data on (e.g. 127.0.0.1:7777)")

	return cmd
}

func runBuild(cmd *cobra.Command, flags *buildFlags) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(sigCtx)
	defer cancel(nil)

	store, err := openStore(cfg, flags.NoCache)
	if err != nil {
		return err
	}
	opts := cfg.BuildOptions()
	opts.Store = store

	orch := build.New(opts, logger)
	mgr := session.NewManager()

	if err := startFeeds(ctx, cancel, cmd, mgr, cfg, flags.Routes, logger); err != nil {
		return err
	}

	result, err := orch.Run(ctx, mgr)
	if err != nil {
		// A broken route feed cancels the build; report the feed error itself.
		if cause := context.Cause(ctx); cause != nil && !stderrors.Is(cause, context.Canceled) {
			return cause
		}
		return err
	}

	return printResult(cmd.OutOrStdout(), flags.Format, result)
}

// startFeeds connects the configured route-data producers to mgr. With no
// producer the barrier is ended as soon as the build opens.
func startFeeds(ctx context.Context, cancel context.CancelCauseFunc, cmd *cobra.Command, mgr *session.Manager, cfg *config.Config, routes string, logger logging.Logger) error {
	if cfg.Feed.Listen != "" {
		srv := feed.NewServer(mgr, feed.Config{
			Listen:         cfg.Feed.Listen,
			MaxConnections: cfg.Feed.MaxConnections,
		}, logger)
		if _, err := srv.Start(ctx); err != nil {
			return err
		}
	}

	switch {
	case routes != "":
		r, closeFn, err := openRoutes(cmd, routes)
		if err != nil {
			return err
		}
		go func() {
			defer closeFn()
			n, err := feed.Replay(ctx, mgr, r)
			if err != nil {
				cancel(err)
				return
			}
			logger.Debug(ctx, "Route data replayed", "records", n)
		}()
	case cfg.Feed.Listen == "":
		go func() {
			if err := mgr.DoneSourcingData(ctx); err != nil && ctx.Err() == nil {
				logger.Warn(ctx, err, "Failed to end data sourcing")
			}
		}()
	}
	return nil
}

func openRoutes(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open route data: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// openStore picks the persistent artifact store: none, a bucket or local disk.
func openStore(cfg *config.Config, noCache bool) (cache.Store, error) {
	if noCache || !cfg.Cache.Enabled {
		return nil, nil
	}
	if cfg.Cache.Remote.Endpoint != "" {
		store, err := cache.NewObjectStore(cfg.ObjectStoreConfig())
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := cache.NewDiskStore(cfg.CacheDir())
	if err != nil {
		return nil, err
	}
	return store, nil
}

func printResult(w io.Writer, format string, result *build.Result) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Fprintf(w, "Built %d modules in %s\n", len(result.Modules), result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Cache: %d hits (%d from store), %d compiled\n",
		result.Stats.Hits+result.Stats.StoreHits, result.Stats.StoreHits, result.Stats.Misses)
	if len(result.Slugs) == 0 {
		fmt.Fprintln(w, "No route data")
		return nil
	}
	fmt.Fprintf(w, "Routes (%d):\n", len(result.Slugs))
	fmt.Fprintf(w, "  %s\n", strings.Join(result.Slugs, "\n  "))
	return nil
}
