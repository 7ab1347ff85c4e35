package cmd

import (
	"fmt"

	"github.com/crytic/crossguard/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command that displays build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long: `Print the version and build information of crossguard: the semantic version, the git commit and its
timestamp, and the Go version used to compile the binary.`,
	Args: cmdValidateNoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetInfo()
		short, err := cmd.Flags().GetBool("short")
		if err != nil {
			return err
		}
		if short {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.Short())
		} else {
			_, err = fmt.Fprint(cmd.OutOrStdout(), info.String())
		}
		return err
	},
	SilenceUsage: true,
}

func init() {
	versionCmd.Flags().Bool("short", false, "print the version on a single line")
	rootCmd.AddCommand(versionCmd)
}
