package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"readerstudy/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded backend for local runs and fixtures.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// one connection keeps the single-writer contract and pragmas in one place
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sqlite tx: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// ListAIOutputs reads a case's stored top-K outside of any import batch.
func (s *SQLiteStore) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	return listAIOutputsSQL(ctx, s.db, caseID)
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
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
	return out, rows.Err()
}

func (t *sqliteTx) CreateRole(ctx context.Context, r models.Role) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO roles (name) VALUES (?)`, r.Name); err != nil {
		return fmt.Errorf("insert role %q: %w", r.Name, err)
	}
	return nil
}

func (t *sqliteTx) ListTerms(ctx context.Context) ([]models.CanonicalTerm, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, name FROM diagnosis_terms ORDER BY id`)
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
	return out, rows.Err()
}

func (t *sqliteTx) CreateTerm(ctx context.Context, term models.CanonicalTerm) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO diagnosis_terms (id, name) VALUES (?, ?)`, term.ID, term.Name); err != nil {
		return fmt.Errorf("insert diagnosis term %d: %w", term.ID, err)
	}
	return nil
}

func (t *sqliteTx) ListSynonyms(ctx context.Context) ([]models.Synonym, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, diagnosis_term_id, synonym FROM diagnosis_synonyms ORDER BY id`)
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
	return out, rows.Err()
}

func (t *sqliteTx) CreateSynonym(ctx context.Context, s models.Synonym) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO diagnosis_synonyms (diagnosis_term_id, synonym) VALUES (?, ?)`, s.TermID, s.Text)
	if err != nil {
		return fmt.Errorf("insert synonym %q: %w", s.Text, err)
	}
	return nil
}

func (t *sqliteTx) GetCase(ctx context.Context, id int) (models.Case, bool, error) {
	var (
		c       models.Case
		raw     sql.NullString
		created string
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT id, COALESCE(ground_truth_diagnosis_id, 0), ai_predictions_json, created_at
FROM cases
WHERE id=?`, id).Scan(&c.ID, &c.GroundTruthTermID, &raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Case{}, false, nil
	}
	if err != nil {
		return models.Case{}, false, fmt.Errorf("get case %d: %w", id, err)
	}
	if c.Probabilities, err = decodeVector([]byte(raw.String)); err != nil {
		return models.Case{}, false, fmt.Errorf("decode case %d vector: %w", id, err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.Case{}, false, fmt.Errorf("parse case %d created_at: %w", id, err)
	}
	return c, true, nil
}

func (t *sqliteTx) CreateCase(ctx context.Context, c models.Case) error {
	raw, err := json.Marshal(c.Probabilities)
	if err != nil {
		return fmt.Errorf("encode case %d vector: %w", c.ID, err)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO cases (id, ground_truth_diagnosis_id, ai_predictions_json, created_at)
VALUES (?, ?, ?, ?)`, c.ID, c.GroundTruthTermID, string(raw), created.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert case %d: %w", c.ID, err)
	}
	return nil
}

func (t *sqliteTx) GetImage(ctx context.Context, caseID int) (models.Image, bool, error) {
	var img models.Image
	err := t.tx.QueryRowContext(ctx, `SELECT id, case_id, COALESCE(image_url,'') FROM images WHERE case_id=?`, caseID).
		Scan(&img.ID, &img.CaseID, &img.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Image{}, false, nil
	}
	if err != nil {
		return models.Image{}, false, fmt.Errorf("get image for case %d: %w", caseID, err)
	}
	return img, true, nil
}

func (t *sqliteTx) CreateImage(ctx context.Context, img models.Image) error {
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO images (case_id, image_url) VALUES (?, ?)`, img.CaseID, img.URL); err != nil {
		return fmt.Errorf("insert image for case %d: %w", img.CaseID, err)
	}
	return nil
}

func (t *sqliteTx) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	return listAIOutputsSQL(ctx, t.tx, caseID)
}

func listAIOutputsSQL(ctx context.Context, q sqlQuerier, caseID int) ([]models.AIOutput, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, case_id, rank, prediction_id, COALESCE(confidence_score, 0)
FROM ai_outputs
WHERE case_id=?
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
	return out, rows.Err()
}

func (t *sqliteTx) CreateAIOutput(ctx context.Context, o models.AIOutput) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO ai_outputs (case_id, rank, prediction_id, confidence_score)
VALUES (?, ?, ?, ?)`, o.CaseID, o.Rank, o.TermID, o.Confidence)
	if err != nil {
		return fmt.Errorf("insert ai output case %d rank %d: %w", o.CaseID, o.Rank, err)
	}
	return nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback sqlite tx: %w", err)
	}
	return nil
}
