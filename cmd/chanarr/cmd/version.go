package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chanarr/chanarr/internal/version"
	"github.com/spf13/cobra"
)

var versionJSON bool

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of chanarr.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(version.GetInfo())
		}

		fmt.Println(version.String())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
