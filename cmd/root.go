// Package cmd provides the command-line interface for toast with
// configuration loaded from several sources.
//
// Configuration System:
//
//	Sources, highest priority first:
//	1. Command-line flags (--workers, --log-level, etc.)
//	2. Environment variables (TOAST_BUILD_WORKERS, TOAST_LOG_LEVEL, etc.),
//	   including values loaded from a .env file in the working directory
//	3. The configuration file: --config, TOAST_CONFIG_FILE or .toast.yml
//	4. Built-in defaults
//
// Environment Variables:
//
//	TOAST_CONFIG_FILE: Path to a custom configuration file
//	TOAST_<SECTION>_<OPTION>: Override any key, e.g. TOAST_CACHE_DIR
package cmd

import (
	stderrors "errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toastdotdev/toast/internal/config"
	"github.com/toastdotdev/toast/internal/logging"
)

// Execute runs the toast command line.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "toast",
		Short: "An incremental compiler for ES module sites",
		Long: `Toast compiles every JavaScript module of a site twice: once for the
browser, with bare imports rewritten through the import map, and once for
server-side rendering. Route data streamed by a data-sourcing script is
collected while the build runs.

Quick Start:
  toast build                      Build the site in the current directory
  toast build site public          Build ./site into ./public
  toast watch                      Rebuild on every change
  toast config                     Show the resolved configuration`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .toast.yml, can also use TOAST_CONFIG_FILE env var)")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")

	root.AddCommand(
		newBuildCommand(),
		newWatchCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)
	return root
}

// initConfig prepares the global viper instance.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. TOAST_CONFIG_FILE environment variable
//  3. .toast.yml in the current directory
//
// A missing default file is not an error; an explicitly named one is.
func initConfig(cmd *cobra.Command, cfgFile string) error {
	viper.Reset()

	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}

	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TOAST_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".toast")
	}

	viper.SetEnvPrefix("TOAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	flags := cmd.Flags()
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

// loadConfig resolves the configuration and the logger for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.NewLogger(logCfg)
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}
	return cfg, logger, nil
}
