package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/config"
)

var banksCmd = &cobra.Command{
	Use:   "banks",
	Short: "List configured banks",
	Long: `Show every bank in the registry with its status, extractor
version and module locator. Reads the same TOML registry the service
uses; without one the builtin defaults are shown.`,
	RunE: runBanks,
}

func init() {
	rootCmd.AddCommand(banksCmd)
}

func runBanks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Logging)

	ttl := time.Duration(cfg.Banks.CacheTTLSeconds) * time.Second
	registry := bankconfig.New(cfg.Banks.File, ttl, logger)

	entries := registry.All()
	fmt.Printf("%-12s %-38s %-10s %-8s %s\n", "ID", "NAME", "STATUS", "VERSION", "MODULE")
	for _, e := range entries {
		fmt.Printf("%-12s %-38s %-10s %-8s %s\n", e.ID, e.Name, e.Status, e.Version, e.Module)
	}
	return nil
}
