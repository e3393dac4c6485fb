package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toastdotdev/toast/internal/build"
	"github.com/toastdotdev/toast/internal/config"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/logging"
	"github.com/toastdotdev/toast/internal/session"
	"github.com/toastdotdev/toast/internal/watcher"
)

func newWatchCommand() *cobra.Command {
	flags := &ProjectFlags{}

	cmd := &cobra.Command{
		Use:     "watch [input_dir] [output_dir]",
		Aliases: []string{"w"},
		Short:   "Rebuild whenever a module or the import map changes",
		Long: `Build once, then rebuild after every batch of changes to the modules
under <input_dir>/src or to the import map. Unchanged modules are served
from the persistent cache. Watch builds run without route data.

Examples:
  toast watch                     # Watch . and write to ./public
  toast watch site dist           # Watch ./site and write to ./dist
  toast watch --debounce 500ms    # Wait longer for editors to settle`,
		Args: cobra.MaximumNArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindDirs(args)
			if err := bindFlags(cmd, projectBindings...); err != nil {
				return err
			}
			return bindFlags(cmd, flagBinding{"debounce", "watch.debounce"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}

	addProjectFlags(cmd.Flags(), flags)
	cmd.Flags().Duration("debounce", 0, "Quiet period before a batch of changes triggers a rebuild")

	return cmd
}

func runWatch(cmd *cobra.Command, flags *ProjectFlags) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, flags.NoCache)
	if err != nil {
		return err
	}
	opts := cfg.BuildOptions()
	opts.Store = store
	orch := build.New(opts, logger)
	mgr := session.NewManager()

	rebuild := func(ctx context.Context) {
		if err := buildWithoutRoutes(ctx, orch, mgr); err != nil {
			errors.NewErrorHandler(logger).Handle(ctx, err)
		}
	}

	fileWatcher, err := newProjectWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, event := range events {
			logger.Debug(ctx, "Change detected", "path", event.Path, "type", event.Type.String())
		}
		logger.Info(ctx, "Rebuilding", "changes", len(events))
		rebuild(ctx)
		return nil
	})

	rebuild(ctx)
	fileWatcher.Start(ctx)
	logger.Info(ctx, "Watching for changes", "src", filepath.Join(cfg.Build.InputDir, cfg.Build.SrcDir))

	<-ctx.Done()
	m := orch.Metrics().Snapshot()
	logger.Info(context.Background(), "Stopped watching",
		"builds", m.TotalBuilds,
		"failed", m.FailedBuilds,
		"average_duration", m.AverageDuration)
	return nil
}

// buildWithoutRoutes runs one build whose barrier is ended immediately.
func buildWithoutRoutes(ctx context.Context, orch *build.Orchestrator, mgr *session.Manager) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		_ = mgr.DoneSourcingData(ctx)
	}()
	_, err := orch.Run(ctx, mgr)
	return err
}

// newProjectWatcher watches the module tree and the directory holding the
// import map. Build output never lands in either.
func newProjectWatcher(cfg *config.Config, logger logging.Logger) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, err
	}

	importMap := filepath.Join(cfg.Build.OutputDir, filepath.FromSlash(cfg.Build.ImportMap))
	fw.AddFilter(watcher.ImportMapFilter(importMap, watcher.ExtensionFilter(cfg.Build.Extensions...)))
	fw.SkipDirs(watcher.HiddenDir)
	fw.SkipDirs(watcher.NamedDir("node_modules"))

	srcDir := filepath.Join(cfg.Build.InputDir, cfg.Build.SrcDir)
	if err := fw.AddRecursive(srcDir); err != nil {
		fw.Stop()
		return nil, err
	}
	if err := fw.AddPath(filepath.Dir(importMap)); err != nil {
		logger.Warn(context.Background(), err, "Import map directory is not watched", "path", filepath.Dir(importMap))
	}
	return fw, nil
}
