package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ProjectFlags are shared by commands that compile a project.
type ProjectFlags struct {
	Workers      int
	DrainTimeout time.Duration
	NoCache      bool
}

// OutputFlags select how a command reports its result.
type OutputFlags struct {
	Format string
}

// flagBinding ties a flag to the configuration key it overrides.
type flagBinding struct {
	flag string
	key  string
}

var projectBindings = []flagBinding{
	{"workers", "build.workers"},
	{"drain-timeout", "build.drain_timeout"},
}

func addProjectFlags(fs *pflag.FlagSet, flags *ProjectFlags) {
	fs.IntVarP(&flags.Workers, "workers", "j", 4, "Number of modules compiled concurrently")
	fs.DurationVar(&flags.DrainTimeout, "drain-timeout", 0, "Maximum wait for route data (0 waits until sourcing ends)")
	fs.BoolVar(&flags.NoCache, "no-cache", false, "Compile every module without the persistent cache")
}

func addOutputFlags(fs *pflag.FlagSet, flags *OutputFlags) {
	fs.StringVarP(&flags.Format, "format", "f", "text", "Output format (text|json)")
}

// bindFlags overrides configuration keys with flags given on the command
// line. It runs per invocation so commands sharing a flag name do not
// clobber each other's bindings.
func bindFlags(cmd *cobra.Command, bindings ...flagBinding) error {
	for _, b := range bindings {
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			return fmt.Errorf("unknown flag --%s", b.flag)
		}
		if err := viper.BindPFlag(b.key, f); err != nil {
			return err
		}
	}
	return nil
}

// bindDirs applies the optional [input_dir] [output_dir] arguments.
func bindDirs(args []string) {
	if len(args) > 0 {
		viper.Set("build.input_dir", args[0])
	}
	if len(args) > 1 {
		viper.Set("build.output_dir", args[1])
	}
}

func validateFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}
