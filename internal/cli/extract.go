package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/assembler"
	"github.com/insightdelivered/statement-extractor/internal/bankconfig"
	"github.com/insightdelivered/statement-extractor/internal/config"
	"github.com/insightdelivered/statement-extractor/internal/export"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

var (
	extractBank     string
	extractPassword string
	extractOutput   string
	extractFormat   string
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE.pdf [FILE2.pdf ...]",
	Short: "Convert statement PDFs without running the service",
	Long: `Run the extraction pipeline on one or more PDFs and write the
result as JSON (default), CSV or Excel. With multiple inputs the
--output flag is ignored and per-file names are derived from the
statement metadata.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&extractBank, "bank", "", "Bank id: canara, union_bank, apgvb (auto-detected if omitted)")
	extractCmd.Flags().StringVar(&extractPassword, "password", "", "Password for encrypted statements")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output path (json defaults to stdout)")
	extractCmd.Flags().StringVar(&extractFormat, "format", "json", "Output format: json, csv or excel")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Logging)

	ttl := time.Duration(cfg.Banks.CacheTTLSeconds) * time.Second
	registry := bankconfig.New(cfg.Banks.File, ttl, logger)
	resolver := extractor.NewResolver(registry, ttl, logger)
	asm := assembler.New(resolver, logger)

	output := extractOutput
	if len(args) > 1 {
		output = ""
	}
	for _, path := range args {
		if err := extractFile(cmd, asm, path, output); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func extractFile(cmd *cobra.Command, asm *assembler.Assembler, path, output string) error {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return fmt.Errorf("expected a .pdf file, got %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Processing: %s\n", path)
	resp, err := asm.Process(cmd.Context(), data, models.BankID(extractBank), extractPassword)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "  Bank: %s\n", resp.Metadata.BankName)
	fmt.Fprintf(os.Stderr, "  Found %d transaction(s)\n", resp.TotalTransactions)
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "  Warning: %s\n", w)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch extractFormat {
	case "json":
		out := io.Writer(os.Stdout)
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	case "csv":
		outPath := output
		if outPath == "" {
			outPath = export.Filename(resp.Metadata, base, "csv")
		}
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.WriteCSV(f, resp); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  Output: %s\n", outPath)
	case "excel", "xlsx":
		outPath := output
		if outPath == "" {
			outPath = export.Filename(resp.Metadata, base, "xlsx")
		}
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.WriteExcel(f, resp); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  Output: %s\n", outPath)
	default:
		return fmt.Errorf("unsupported format %q: use json, csv or excel", extractFormat)
	}
	return nil
}
