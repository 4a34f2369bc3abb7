package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("statement-extractor v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
