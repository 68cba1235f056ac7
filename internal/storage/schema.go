package storage

const postgresSchema = `
CREATE TABLE IF NOT EXISTS roles (
  id SERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS diagnosis_terms (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS diagnosis_synonyms (
  id SERIAL PRIMARY KEY,
  diagnosis_term_id INTEGER NOT NULL REFERENCES diagnosis_terms(id),
  synonym TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_diagnosis_synonyms_lower ON diagnosis_synonyms (lower(synonym));
CREATE TABLE IF NOT EXISTS cases (
  id INTEGER PRIMARY KEY,
  ground_truth_diagnosis_id INTEGER REFERENCES diagnosis_terms(id),
  ai_predictions_json JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS images (
  id SERIAL PRIMARY KEY,
  case_id INTEGER NOT NULL UNIQUE REFERENCES cases(id),
  image_url TEXT
);
CREATE TABLE IF NOT EXISTS ai_outputs (
  id SERIAL PRIMARY KEY,
  case_id INTEGER NOT NULL REFERENCES cases(id),
  rank INTEGER NOT NULL,
  prediction_id INTEGER NOT NULL REFERENCES diagnosis_terms(id),
  confidence_score DOUBLE PRECISION,
  CONSTRAINT uix_case_rank UNIQUE (case_id, rank)
);`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS roles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS diagnosis_terms (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS diagnosis_synonyms (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  diagnosis_term_id INTEGER NOT NULL REFERENCES diagnosis_terms(id),
  synonym TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_diagnosis_synonyms_lower ON diagnosis_synonyms (lower(synonym));
CREATE TABLE IF NOT EXISTS cases (
  id INTEGER PRIMARY KEY,
  ground_truth_diagnosis_id INTEGER REFERENCES diagnosis_terms(id),
  ai_predictions_json TEXT,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  case_id INTEGER NOT NULL UNIQUE REFERENCES cases(id),
  image_url TEXT
);
CREATE TABLE IF NOT EXISTS ai_outputs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  case_id INTEGER NOT NULL REFERENCES cases(id),
  rank INTEGER NOT NULL,
  prediction_id INTEGER NOT NULL REFERENCES diagnosis_terms(id),
  confidence_score REAL,
  UNIQUE (case_id, rank)
);`
