package importer

import (
	"context"
	"time"

	"readerstudy/internal/logger"
	"readerstudy/internal/models"
	"readerstudy/internal/ranking"
	"readerstudy/internal/reconcile"
	"readerstudy/internal/storage"
	"readerstudy/internal/taxonomy"
)

// Writer persists resolved entities idempotently: every create is preceded by a lookup on the
// entity's natural key, and existing rows are never updated.
type Writer struct {
	store     storage.Store
	log       *logger.Logger
	batchSize int
	topK      int
	now       func() time.Time
}

func NewWriter(store storage.Store, log *logger.Logger, batchSize, topK int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if topK <= 0 {
		topK = ranking.DefaultK
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Writer{store: store, log: log, batchSize: batchSize, topK: topK, now: time.Now}
}

// inTx runs fn inside one transaction. The transaction ignores cancellation of ctx so that a
// started batch always reaches commit or rollback.
func (w *Writer) inTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	ctx = context.WithoutCancel(ctx)
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return storeErr(err)
	}
	return storeErr(tx.Commit(ctx))
}

// EnsureRoles creates the named roles that are not stored yet, comparing names case-insensitively.
func (w *Writer) EnsureRoles(ctx context.Context, names []string) (Summary, error) {
	var sum Summary
	err := w.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.ListRoles(ctx)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		for _, r := range existing {
			seen[taxonomy.Key(r.Name)] = true
		}
		for _, name := range names {
			k := taxonomy.Key(name)
			if k == "" {
				sum.Roles.Rejected++
				continue
			}
			if seen[k] {
				sum.Roles.Skipped++
				continue
			}
			if err := tx.CreateRole(ctx, models.Role{Name: name}); err != nil {
				return err
			}
			seen[k] = true
			sum.Roles.Created++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// EnsureTerms writes canonical terms in batches. A stored term with the same id keeps its name;
// a differing name is reported and left untouched.
func (w *Writer) EnsureTerms(ctx context.Context, terms []taxonomy.TermCandidate) (Summary, error) {
	var total Summary
	for start := 0; start < len(terms); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			total.Cancelled = true
			return total, nil
		}
		end := min(start+w.batchSize, len(terms))
		var batch Summary
		err := w.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			stored, err := tx.ListTerms(ctx)
			if err != nil {
				return err
			}
			byID := make(map[int]models.CanonicalTerm, len(stored))
			byName := make(map[string]int, len(stored))
			for _, t := range stored {
				byID[t.ID] = t
				byName[t.Name] = t.ID
			}
			for _, c := range terms[start:end] {
				if prev, ok := byID[c.Term.ID]; ok {
					batch.Terms.Skipped++
					if prev.Name != c.Term.Name {
						batch.warn(StageTerms, models.Warnf(models.WarnDuplicateKey, c.Line,
							"term %d is stored as %q; source name %q ignored", c.Term.ID, prev.Name, c.Term.Name))
					}
					continue
				}
				if owner, ok := byName[c.Term.Name]; ok {
					batch.Terms.Rejected++
					batch.warn(StageTerms, models.Warnf(models.WarnDuplicateKey, c.Line,
						"term name %q is stored under id %d; id %d rejected", c.Term.Name, owner, c.Term.ID))
					continue
				}
				if err := tx.CreateTerm(ctx, c.Term); err != nil {
					return err
				}
				byID[c.Term.ID] = c.Term
				byName[c.Term.Name] = c.Term.ID
				batch.Terms.Created++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		w.log.Debug("term batch committed", "from", start, "to", end, "created", batch.Terms.Created)
		total.Merge(batch)
	}
	return total, nil
}

// EnsureSynonyms deduplicates proposals against the stored aliases and writes the survivors in
// batches. Aliases for terms that do not exist are rejected.
func (w *Writer) EnsureSynonyms(ctx context.Context, proposed []taxonomy.SynonymCandidate) (Summary, error) {
	var total Summary
	var fresh []taxonomy.SynonymCandidate
	err := w.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.ListSynonyms(ctx)
		if err != nil {
			return err
		}
		terms, err := tx.ListTerms(ctx)
		if err != nil {
			return err
		}
		known := make(map[int]bool, len(terms))
		for _, t := range terms {
			known[t.ID] = true
		}

		// A rejected alias must not win the first-occurrence rule against a valid one.
		owned := make([]taxonomy.SynonymCandidate, 0, len(proposed))
		for _, c := range proposed {
			if !known[c.Synonym.TermID] {
				total.Synonyms.Rejected++
				total.warn(StageSynonyms, models.Warnf(models.WarnUnknownReference, c.Line,
					"synonym %q references unknown term %d", c.Synonym.Text, c.Synonym.TermID))
				continue
			}
			owned = append(owned, c)
		}

		res := taxonomy.DedupSynonyms(owned, existing)
		total.Synonyms.Skipped += res.Skipped
		total.Synonyms.Rejected += res.Dropped
		total.warn(StageSynonyms, res.Warnings...)
		fresh = res.Fresh
		return nil
	})
	if err != nil {
		return total, err
	}

	for start := 0; start < len(fresh); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			total.Cancelled = true
			return total, nil
		}
		end := min(start+w.batchSize, len(fresh))
		err := w.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			for _, c := range fresh[start:end] {
				if err := tx.CreateSynonym(ctx, c.Synonym); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total.Synonyms.Created += end - start
		w.log.Debug("synonym batch committed", "from", start, "to", end)
	}
	return total, nil
}

// WriteCases reconciles and writes one batch of case rows in a single transaction. Counts and
// warnings are only returned for a committed batch.
func (w *Writer) WriteCases(ctx context.Context, batch []reconcile.Candidate, known func(int) bool) (Summary, error) {
	var sum Summary
	err := w.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, c := range batch {
			sum.CaseRows++
			rec, warnings, ok := reconcile.Reconcile(c, known)
			sum.warn(StageCases, warnings...)
			if !ok {
				sum.Cases.Rejected++
				continue
			}
			if err := w.writeCase(ctx, tx, rec, &sum); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (w *Writer) writeCase(ctx context.Context, tx storage.Tx, rec reconcile.Record, sum *Summary) error {
	stored, found, err := tx.GetCase(ctx, rec.Case.ID)
	if err != nil {
		return err
	}

	vector := rec.Case.Probabilities
	if found {
		sum.Cases.Skipped++
		if stored.GroundTruthTermID != rec.Case.GroundTruthTermID {
			sum.warn(StageCases, models.Warnf(models.WarnDuplicateKey, rec.Line,
				"case %d is stored with ground truth %d; source value %d ignored",
				rec.Case.ID, stored.GroundTruthTermID, rec.Case.GroundTruthTermID))
		}
		// Outputs always derive from the stored vector so a rerun cannot disagree with rank history.
		vector = stored.Probabilities
	} else {
		c := rec.Case
		c.CreatedAt = w.now().UTC()
		if err := tx.CreateCase(ctx, c); err != nil {
			return err
		}
		sum.Cases.Created++
	}

	img, found, err := tx.GetImage(ctx, rec.Case.ID)
	if err != nil {
		return err
	}
	if found {
		sum.Images.Skipped++
		if img.URL != rec.Image.URL {
			sum.warn(StageCases, models.Warnf(models.WarnDuplicateKey, rec.Line,
				"case %d image is stored as %q; source path %q ignored", rec.Case.ID, img.URL, rec.Image.URL))
		}
	} else {
		if err := tx.CreateImage(ctx, rec.Image); err != nil {
			return err
		}
		sum.Images.Created++
	}

	existing, err := tx.ListAIOutputs(ctx, rec.Case.ID)
	if err != nil {
		return err
	}
	byRank := make(map[int]models.AIOutput, len(existing))
	for _, o := range existing {
		byRank[o.Rank] = o
	}
	for _, o := range ranking.Outputs(rec.Case.ID, ranking.TopKVector(vector, w.topK)) {
		if prev, ok := byRank[o.Rank]; ok {
			sum.AIOutputs.Skipped++
			if prev.TermID != o.TermID {
				sum.warn(StageCases, models.Warnf(models.WarnDuplicateKey, rec.Line,
					"case %d rank %d is stored as term %d; computed term %d ignored",
					rec.Case.ID, o.Rank, prev.TermID, o.TermID))
			}
			continue
		}
		if err := tx.CreateAIOutput(ctx, o); err != nil {
			return err
		}
		sum.AIOutputs.Created++
	}
	return nil
}
