package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toastdotdev/toast/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		format string
		short  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the toast version, the commit it was built from, the Go
toolchain and platform, and the artifact format written by the compiler.
Artifacts cached by a build with a different format are never reused.

Examples:
  toast version                 # Show version details
  toast version --short         # Show the version only
  toast version --format json   # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(version.GetBuildInfo())
			case "text":
				if short {
					fmt.Fprintln(out, version.GetShortVersion())
					return nil
				}
				fmt.Fprintln(out, version.GetBuildInfo().String())
				return nil
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "Show short version only")
	return cmd
}
