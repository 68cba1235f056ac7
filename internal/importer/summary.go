package importer

import (
	"time"

	"readerstudy/internal/models"
)

const (
	StageRoles    = "roles"
	StageTerms    = "terms"
	StageSynonyms = "synonyms"
	StageCases    = "cases"
)

// Count tallies one entity kind. Skipped rows already existed; rejected rows were invalid.
type Count struct {
	Created  int `json:"created" yaml:"created"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Rejected int `json:"rejected" yaml:"rejected"`
}

func (c *Count) add(o Count) {
	c.Created += o.Created
	c.Skipped += o.Skipped
	c.Rejected += o.Rejected
}

type Source struct {
	Path   string `json:"path" yaml:"path"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}

type Summary struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	DryRun     bool             `json:"dry_run" yaml:"dry_run"`
	Cancelled  bool             `json:"cancelled" yaml:"cancelled"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
	Sources    []Source         `json:"sources,omitempty" yaml:"sources,omitempty"`
	TermRows   int              `json:"term_rows" yaml:"term_rows"`
	CaseRows   int              `json:"case_rows" yaml:"case_rows"`
	Roles      Count            `json:"roles" yaml:"roles"`
	Terms      Count            `json:"terms" yaml:"terms"`
	Synonyms   Count            `json:"synonyms" yaml:"synonyms"`
	Cases      Count            `json:"cases" yaml:"cases"`
	Images     Count            `json:"images" yaml:"images"`
	AIOutputs  Count            `json:"ai_outputs" yaml:"ai_outputs"`
	Warnings   []models.Warning `json:"warnings" yaml:"warnings"`
}

// Merge folds the counts and warnings of o into s. Run metadata stays with s.
func (s *Summary) Merge(o Summary) {
	s.TermRows += o.TermRows
	s.CaseRows += o.CaseRows
	s.Roles.add(o.Roles)
	s.Terms.add(o.Terms)
	s.Synonyms.add(o.Synonyms)
	s.Cases.add(o.Cases)
	s.Images.add(o.Images)
	s.AIOutputs.add(o.AIOutputs)
	s.Warnings = append(s.Warnings, o.Warnings...)
	s.Cancelled = s.Cancelled || o.Cancelled
}

// Created is the number of rows the run created, or would have created on a dry run.
func (s Summary) Created() int {
	return s.Roles.Created + s.Terms.Created + s.Synonyms.Created + s.Cases.Created + s.Images.Created + s.AIOutputs.Created
}

func (s *Summary) warn(stage string, ws ...models.Warning) {
	for _, w := range ws {
		w.Stage = stage
		s.Warnings = append(s.Warnings, w)
	}
}

// Cursor tracks how far a case import got through the source, in data rows.
type Cursor struct {
	Offset int  `json:"offset" yaml:"offset"`
	Done   bool `json:"done" yaml:"done"`
}
