// Package cli wires the statement-extractor commands: the HTTP service,
// a one-shot converter, and registry inspection.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "statement-extractor",
	Short: "Extract structured transaction data from Indian bank statement PDFs",
	Long: `statement-extractor converts bank statement PDFs into a uniform JSON
record: statement metadata, the transaction ledger, and an independently
recomputed financial summary.

It runs either as an HTTP service with an asynchronous job queue or as
a one-shot command line converter. Supported banks ship builtin (Canara
Bank, Union Bank of India, Andhra Pradesh Grameena Vikas Bank) and are
enabled through a TOML registry that can be edited without redeploying.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to TOML config file")
}

// Execute runs the CLI. A .env file in the working directory is read
// first so local runs pick up STMX_ overrides without exporting them.
func Execute() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
