package main

import (
	"encoding/json"
	"fmt"
	"io"

	"readerstudy/internal/config"
	"readerstudy/internal/importer"
	"readerstudy/internal/storage"
	"readerstudy/internal/util"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

type importFlags struct {
	terms      string
	cases      string
	batchSize  int
	maxCases   int
	topK       int
	dryRun     bool
	summaryOut string
	format     string
}

func newImportCommand(root *rootFlags) *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the taxonomy and case sources",
		Example: `  readerstudy import --terms data/derm_dictionary.csv --cases data/cases.csv
  readerstudy import --terms terms.csv --cases cases.csv --dry-run --summary-out out/summary.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, root, f)
		},
	}
	cmd.Flags().StringVar(&f.terms, "terms", "", "taxonomy CSV (id,canonical,type,alias)")
	cmd.Flags().StringVar(&f.cases, "cases", "", "cases CSV (case_id,image_path,gt,<term id>...)")
	cmd.Flags().IntVar(&f.batchSize, "commit-batch-size", 0, "rows per committed batch (default from config, 200)")
	cmd.Flags().IntVar(&f.maxCases, "max-cases", 0, "read at most this many case rows; 0 reads all")
	cmd.Flags().IntVar(&f.topK, "top-k", 0, "AI outputs kept per case (default from config, 3)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "resolve and count everything without committing")
	cmd.Flags().StringVar(&f.summaryOut, "summary-out", "", "also write the summary to this .json or .yaml file")
	cmd.Flags().StringVarP(&f.format, "format", "o", "yaml", "summary output format: yaml or json")
	_ = cmd.MarkFlagRequired("terms")
	_ = cmd.MarkFlagRequired("cases")
	return cmd
}

func runImport(cmd *cobra.Command, root *rootFlags, f *importFlags) error {
	ctx := cmd.Context()
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	defer log.Sync()

	roles, err := config.LoadRoles(cfg.RolesFile)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", importer.ErrStoreUnavailable, err)
	}
	defer store.Close()

	opts := importer.Options{
		TermsPath: f.terms,
		CasesPath: f.cases,
		BatchSize: cfg.CommitBatchSize,
		MaxCases:  f.maxCases,
		DryRun:    f.dryRun,
		TopK:      cfg.TopK,
		Roles:     roles,
	}
	if f.batchSize > 0 {
		opts.BatchSize = f.batchSize
	}
	if f.topK > 0 {
		opts.TopK = f.topK
	}

	sum, runErr := importer.New(store, log, opts).Run(ctx)
	if f.summaryOut != "" {
		if err := util.WriteReportAtomic(f.summaryOut, sum); err != nil {
			log.Error("write summary", "path", f.summaryOut, "error", err)
		}
	}
	if err := printSummary(cmd.OutOrStdout(), f.format, sum); err != nil {
		return err
	}
	return runErr
}

func printSummary(w io.Writer, format string, sum importer.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case "yaml", "":
		return yaml.NewEncoder(w).Encode(sum)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
