package activities

import (
	"context"
	"errors"
	"path/filepath"

	"readerstudy/internal/config"
	"readerstudy/internal/importer"
	"readerstudy/internal/logger"
	"readerstudy/internal/storage"
	"readerstudy/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

const (
	SummaryFile  = "summary.json"
	WarningsFile = "warnings.jsonl"

	ErrTypeBadSource = "BadSource"
)

type Activities struct {
	cfg   config.Config
	store storage.Store
	log   *logger.Logger
	roles []string
}

func New(cfg config.Config, store storage.Store, log *logger.Logger, roles []string) *Activities {
	if log == nil {
		log = logger.NewNop()
	}
	return &Activities{cfg: cfg, store: store, log: log, roles: roles}
}

// SummaryPath is where the merged summary of a run is written.
func SummaryPath(root, runID string) string {
	return filepath.Join(root, runID, SummaryFile)
}

func (a *Activities) newImporter(spec ImportSpec) *importer.Importer {
	batch := spec.BatchSize
	if batch <= 0 {
		batch = a.cfg.CommitBatchSize
	}
	topK := spec.TopK
	if topK <= 0 {
		topK = a.cfg.TopK
	}
	return importer.New(a.store, a.log, importer.Options{
		RunID:     spec.RunID,
		TermsPath: spec.TermsPath,
		CasesPath: spec.CasesPath,
		BatchSize: batch,
		MaxCases:  spec.MaxCases,
		TopK:      topK,
		Roles:     a.roles,
	})
}

// classify marks source problems as non-retryable; a store outage is left to the retry policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, importer.ErrBadHeader) || errors.Is(err, importer.ErrSourceUnreadable) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeBadSource, err)
	}
	return err
}

func (a *Activities) SeedRolesActivity(ctx context.Context, in SeedRolesInput) (StageOutput, error) {
	sum, err := a.newImporter(in.Spec).SeedRoles(ctx)
	if err != nil {
		return StageOutput{}, classify(err)
	}
	return StageOutput{Summary: sum}, nil
}

func (a *Activities) ImportTaxonomyActivity(ctx context.Context, in ImportTaxonomyInput) (StageOutput, error) {
	sum, err := a.newImporter(in.Spec).ImportTaxonomy(ctx)
	if err != nil {
		return StageOutput{}, classify(err)
	}
	return StageOutput{Summary: sum}, nil
}

// ImportCaseBatchActivity imports up to Limit case rows from Offset. A retry after a failed
// commit re-reads the same rows; rows that did commit are skipped by the writer.
func (a *Activities) ImportCaseBatchActivity(ctx context.Context, in ImportCaseBatchInput) (ImportCaseBatchOutput, error) {
	if activity.IsActivity(ctx) {
		activity.RecordHeartbeat(ctx, in.Offset)
	}
	sum, cur, err := a.newImporter(in.Spec).ImportCases(ctx, in.Offset, in.Limit)
	if err != nil {
		return ImportCaseBatchOutput{}, classify(err)
	}
	return ImportCaseBatchOutput{Summary: sum, Cursor: cur}, nil
}

func (a *Activities) WriteImportSummaryActivity(_ context.Context, in WriteImportSummaryInput) (WriteImportSummaryOutput, error) {
	out := WriteImportSummaryOutput{
		SummaryPath:  SummaryPath(a.cfg.SummaryOutRoot, in.RunID),
		WarningsPath: filepath.Join(a.cfg.SummaryOutRoot, in.RunID, WarningsFile),
	}
	if err := util.WriteJSONAtomic(out.SummaryPath, in.Summary); err != nil {
		return WriteImportSummaryOutput{}, err
	}
	if err := util.WriteJSONLinesAtomic(out.WarningsPath, in.Summary.Warnings); err != nil {
		return WriteImportSummaryOutput{}, err
	}
	a.log.Info("import summary written", "run_id", in.RunID, "path", out.SummaryPath)
	return out, nil
}
