package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"readerstudy/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() error {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
	return nil
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

func (d *DB) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin postgres tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// ListAIOutputs reads a case's stored top-K outside of any import batch.
func (d *DB) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	return listAIOutputsPG(ctx, d.Pool, caseID)
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	out := make([]models.Role, 0)
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return out, nil
}

func (t *pgTx) CreateRole(ctx context.Context, r models.Role) error {
	if _, err := t.tx.Exec(ctx, `INSERT INTO roles (name) VALUES ($1)`, r.Name); err != nil {
		return fmt.Errorf("insert role %q: %w", r.Name, err)
	}
	return nil
}

func (t *pgTx) ListTerms(ctx context.Context) ([]models.CanonicalTerm, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name FROM diagnosis_terms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list diagnosis terms: %w", err)
	}
	defer rows.Close()
	out := make([]models.CanonicalTerm, 0, 512)
	for rows.Next() {
		var term models.CanonicalTerm
		if err := rows.Scan(&term.ID, &term.Name); err != nil {
			return nil, fmt.Errorf("scan diagnosis term: %w", err)
		}
		out = append(out, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnosis terms: %w", err)
	}
	return out, nil
}

func (t *pgTx) CreateTerm(ctx context.Context, term models.CanonicalTerm) error {
	if _, err := t.tx.Exec(ctx, `INSERT INTO diagnosis_terms (id, name) VALUES ($1, $2)`, term.ID, term.Name); err != nil {
		return fmt.Errorf("insert diagnosis term %d: %w", term.ID, err)
	}
	return nil
}

func (t *pgTx) ListSynonyms(ctx context.Context) ([]models.Synonym, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, diagnosis_term_id, synonym FROM diagnosis_synonyms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list synonyms: %w", err)
	}
	defer rows.Close()
	out := make([]models.Synonym, 0, 1024)
	for rows.Next() {
		var s models.Synonym
		if err := rows.Scan(&s.ID, &s.TermID, &s.Text); err != nil {
			return nil, fmt.Errorf("scan synonym: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synonyms: %w", err)
	}
	return out, nil
}

func (t *pgTx) CreateSynonym(ctx context.Context, s models.Synonym) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO diagnosis_synonyms (diagnosis_term_id, synonym) VALUES ($1, $2)`, s.TermID, s.Text)
	if err != nil {
		return fmt.Errorf("insert synonym %q: %w", s.Text, err)
	}
	return nil
}

func (t *pgTx) GetCase(ctx context.Context, id int) (models.Case, bool, error) {
	var (
		c   models.Case
		raw []byte
	)
	err := t.tx.QueryRow(ctx, `
SELECT id, COALESCE(ground_truth_diagnosis_id, 0), ai_predictions_json, created_at
FROM cases
WHERE id=$1`, id).Scan(&c.ID, &c.GroundTruthTermID, &raw, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Case{}, false, nil
	}
	if err != nil {
		return models.Case{}, false, fmt.Errorf("get case %d: %w", id, err)
	}
	if c.Probabilities, err = decodeVector(raw); err != nil {
		return models.Case{}, false, fmt.Errorf("decode case %d vector: %w", id, err)
	}
	return c, true, nil
}

func (t *pgTx) CreateCase(ctx context.Context, c models.Case) error {
	raw, err := json.Marshal(c.Probabilities)
	if err != nil {
		return fmt.Errorf("encode case %d vector: %w", c.ID, err)
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO cases (id, ground_truth_diagnosis_id, ai_predictions_json)
VALUES ($1, $2, $3::jsonb)`, c.ID, c.GroundTruthTermID, string(raw))
	if err != nil {
		return fmt.Errorf("insert case %d: %w", c.ID, err)
	}
	return nil
}

func (t *pgTx) GetImage(ctx context.Context, caseID int) (models.Image, bool, error) {
	var img models.Image
	err := t.tx.QueryRow(ctx, `SELECT id, case_id, COALESCE(image_url,'') FROM images WHERE case_id=$1`, caseID).
		Scan(&img.ID, &img.CaseID, &img.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Image{}, false, nil
	}
	if err != nil {
		return models.Image{}, false, fmt.Errorf("get image for case %d: %w", caseID, err)
	}
	return img, true, nil
}

func (t *pgTx) CreateImage(ctx context.Context, img models.Image) error {
	if _, err := t.tx.Exec(ctx, `INSERT INTO images (case_id, image_url) VALUES ($1, $2)`, img.CaseID, img.URL); err != nil {
		return fmt.Errorf("insert image for case %d: %w", img.CaseID, err)
	}
	return nil
}

func (t *pgTx) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	return listAIOutputsPG(ctx, t.tx, caseID)
}

func listAIOutputsPG(ctx context.Context, q pgQuerier, caseID int) ([]models.AIOutput, error) {
	rows, err := q.Query(ctx, `
SELECT id, case_id, rank, prediction_id, COALESCE(confidence_score, 0)
FROM ai_outputs
WHERE case_id=$1
ORDER BY rank ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list ai outputs for case %d: %w", caseID, err)
	}
	defer rows.Close()
	out := make([]models.AIOutput, 0, 3)
	for rows.Next() {
		var o models.AIOutput
		if err := rows.Scan(&o.ID, &o.CaseID, &o.Rank, &o.TermID, &o.Confidence); err != nil {
			return nil, fmt.Errorf("scan ai output: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ai outputs: %w", err)
	}
	return out, nil
}

func (t *pgTx) CreateAIOutput(ctx context.Context, o models.AIOutput) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO ai_outputs (case_id, rank, prediction_id, confidence_score)
VALUES ($1, $2, $3, $4)`, o.CaseID, o.Rank, o.TermID, o.Confidence)
	if err != nil {
		return fmt.Errorf("insert ai output case %d rank %d: %w", o.CaseID, o.Rank, err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit postgres tx: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback postgres tx: %w", err)
	}
	return nil
}

func decodeVector(raw []byte) (models.ProbabilityVector, error) {
	v := models.ProbabilityVector{}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
