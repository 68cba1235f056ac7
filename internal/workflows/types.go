package workflows

import "readerstudy/internal/importer"

type ImportInput struct {
	RunID     string `json:"run_id"`
	TermsPath string `json:"terms_path"`
	CasesPath string `json:"cases_path"`
	BatchSize int    `json:"commit_batch_size"`
	MaxCases  int    `json:"max_cases,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

type ImportProgress struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	Stage       string          `json:"stage"`
	CaseRows    int             `json:"case_rows"`
	Batches     int             `json:"batches"`
	Cases       importer.Count  `json:"cases"`
	AIOutputs   importer.Count  `json:"ai_outputs"`
	Warnings    int             `json:"warnings"`
	SummaryPath string          `json:"summary_path,omitempty"`
	FailReason  string          `json:"fail_reason,omitempty"`
	Cursor      importer.Cursor `json:"cursor"`
}
