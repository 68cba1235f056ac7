package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"readerstudy/internal/config"
	"readerstudy/internal/csvsource"
	"readerstudy/internal/logger"
	"readerstudy/internal/models"
	"readerstudy/internal/ranking"
	"readerstudy/internal/reconcile"
	"readerstudy/internal/storage"
	"readerstudy/internal/taxonomy"
	"readerstudy/internal/util"

	"github.com/google/uuid"
)

const DefaultBatchSize = config.DefaultCommitBatchSize

type Options struct {
	RunID     string
	TermsPath string
	CasesPath string
	BatchSize int
	// MaxCases caps the case rows read from the top of the source; zero reads all of them.
	MaxCases int
	DryRun   bool
	TopK     int
	Roles    []string
}

// Importer runs the reader-study import: roles, then the taxonomy, then cases in committed batches.
type Importer struct {
	store  storage.Store
	log    *logger.Logger
	opts   Options
	writer *Writer
}

// New builds an importer over store. With DryRun set every write goes to an in-process overlay
// and no batch is committed.
func New(store storage.Store, log *logger.Logger, opts Options) *Importer {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.TopK <= 0 {
		opts.TopK = ranking.DefaultK
	}
	if opts.Roles == nil {
		opts.Roles = append([]string(nil), config.DefaultRoles...)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if opts.DryRun {
		store = storage.DryRun(store)
	}
	log = log.With("run_id", opts.RunID, "dry_run", opts.DryRun)
	return &Importer{
		store:  store,
		log:    log,
		opts:   opts,
		writer: NewWriter(store, log, opts.BatchSize, opts.TopK),
	}
}

func (im *Importer) RunID() string { return im.opts.RunID }

func (im *Importer) newSummary() Summary {
	return Summary{RunID: im.opts.RunID, DryRun: im.opts.DryRun, StartedAt: time.Now().UTC()}
}

// Run imports both sources end to end. The returned summary covers everything committed before
// an error or cancellation; a cancelled run also returns ctx.Err().
func (im *Importer) Run(ctx context.Context) (Summary, error) {
	sum := im.newSummary()
	finish := func(err error) (Summary, error) {
		sum.FinishedAt = time.Now().UTC()
		if err == nil && sum.Cancelled {
			err = ctx.Err()
		}
		if err != nil {
			im.log.Error("import stopped", "error", err, "cancelled", sum.Cancelled)
		} else {
			im.log.Info("import finished", "created", sum.Created(), "warnings", len(sum.Warnings))
		}
		return sum, err
	}

	for _, path := range []string{im.opts.TermsPath, im.opts.CasesPath} {
		digest, err := util.SHA256File(path)
		if err != nil {
			return finish(fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, err))
		}
		sum.Sources = append(sum.Sources, Source{Path: path, SHA256: digest})
	}
	if err := im.checkHeaders(); err != nil {
		return finish(err)
	}

	stages := []func(context.Context) (Summary, error){
		im.SeedRoles,
		im.ImportTaxonomy,
		func(ctx context.Context) (Summary, error) {
			s, _, err := im.ImportCases(ctx, 0, 0)
			return s, err
		},
	}
	for _, stage := range stages {
		if ctx.Err() != nil {
			sum.Cancelled = true
			return finish(nil)
		}
		part, err := stage(ctx)
		sum.Merge(part)
		if err != nil || sum.Cancelled {
			return finish(err)
		}
	}
	return finish(nil)
}

// checkHeaders rejects a bad source header before anything is written.
func (im *Importer) checkHeaders() error {
	src, err := csvsource.Open(im.opts.TermsPath)
	if err != nil {
		return err
	}
	err = src.Require(true, taxonomy.Columns...)
	_ = src.Close()
	if err != nil {
		return fmt.Errorf("terms %s: %w", im.opts.TermsPath, err)
	}
	r, err := reconcile.Open(im.opts.CasesPath)
	if err != nil {
		return err
	}
	return r.Close()
}

// SeedRoles ensures the configured roles exist.
func (im *Importer) SeedRoles(ctx context.Context) (Summary, error) {
	sum, err := im.writer.EnsureRoles(ctx, im.opts.Roles)
	if err != nil {
		return sum, err
	}
	im.log.Info("roles seeded", "created", sum.Roles.Created, "skipped", sum.Roles.Skipped)
	return sum, nil
}

// ImportTaxonomy reads the terms source, resolves canonical terms and aliases, and writes them.
func (im *Importer) ImportTaxonomy(ctx context.Context) (Summary, error) {
	var sum Summary
	rows, readWarnings, err := taxonomy.ReadRows(im.opts.TermsPath)
	if err != nil {
		return sum, err
	}
	res := taxonomy.Resolve(rows)
	sum.TermRows = res.Rows + len(readWarnings)
	sum.Terms.Rejected = res.RejectedTerms + len(readWarnings)
	sum.Synonyms.Rejected = res.RejectedSynonyms
	sum.warn(StageTerms, readWarnings...)
	sum.warn(StageTerms, res.Warnings...)

	terms, err := im.writer.EnsureTerms(ctx, res.Terms)
	sum.Merge(terms)
	if err != nil || sum.Cancelled {
		im.logWarnings(sum.Warnings)
		return sum, err
	}
	synonyms, err := im.writer.EnsureSynonyms(ctx, res.Synonyms)
	sum.Merge(synonyms)
	im.logWarnings(sum.Warnings)
	if err != nil {
		return sum, err
	}
	im.log.Info("taxonomy imported",
		"terms_created", sum.Terms.Created, "terms_skipped", sum.Terms.Skipped,
		"synonyms_created", sum.Synonyms.Created, "synonyms_rejected", sum.Synonyms.Rejected)
	return sum, nil
}

// ImportCases reads case rows starting at data row offset and writes them in batches. A positive
// limit bounds the rows read in this call. Cancellation is honoured between batches only.
func (im *Importer) ImportCases(ctx context.Context, offset, limit int) (Summary, Cursor, error) {
	var sum Summary
	cur := Cursor{Offset: offset}

	r, err := reconcile.Open(im.opts.CasesPath)
	if err != nil {
		return sum, cur, err
	}
	defer r.Close()
	im.log.Debug("case source opened", "path", im.opts.CasesPath, "term_columns", len(r.TermIDs()), "offset", offset)

	known, err := im.knownTerms(ctx)
	if err != nil {
		return sum, cur, err
	}

	for pos := 0; pos < offset; pos++ {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				cur.Done = true
				return sum, cur, nil
			}
			return sum, cur, err
		}
	}

	read := 0
	for {
		if ctx.Err() != nil {
			sum.Cancelled = true
			return sum, cur, nil
		}
		size := im.opts.BatchSize
		if limit > 0 {
			size = min(size, limit-read)
		}
		if im.opts.MaxCases > 0 {
			size = min(size, im.opts.MaxCases-cur.Offset)
		}
		if size <= 0 {
			cur.Done = im.opts.MaxCases > 0 && cur.Offset >= im.opts.MaxCases
			return sum, cur, nil
		}

		batch, eof, err := readBatch(r, size)
		if err != nil {
			return sum, cur, err
		}
		if len(batch) > 0 {
			part, err := im.writer.WriteCases(ctx, batch, known)
			if err != nil {
				return sum, cur, err
			}
			im.logWarnings(part.Warnings)
			sum.Merge(part)
			cur.Offset += len(batch)
			read += len(batch)
			im.log.Info("case batch committed",
				"offset", cur.Offset, "rows", len(batch),
				"cases_created", part.Cases.Created, "outputs_created", part.AIOutputs.Created)
		}
		if eof {
			cur.Done = true
			return sum, cur, nil
		}
	}
}

func readBatch(r *reconcile.Reader, size int) ([]reconcile.Candidate, bool, error) {
	batch := make([]reconcile.Candidate, 0, size)
	for len(batch) < size {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			return batch, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		batch = append(batch, c)
	}
	return batch, false, nil
}

func (im *Importer) knownTerms(ctx context.Context) (func(int) bool, error) {
	known := map[int]bool{}
	err := im.writer.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		terms, err := tx.ListTerms(ctx)
		if err != nil {
			return err
		}
		for _, t := range terms {
			known[t.ID] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func(id int) bool { return known[id] }, nil
}

func (im *Importer) logWarnings(ws []models.Warning) {
	for _, w := range ws {
		im.log.Warn("row warning", "stage", w.Stage, "line", w.Line, "kind", w.Kind, "message", w.Message)
	}
}
