package activities

import "readerstudy/internal/importer"

// ImportSpec carries the run parameters every import activity needs.
type ImportSpec struct {
	RunID     string `json:"run_id"`
	TermsPath string `json:"terms_path"`
	CasesPath string `json:"cases_path"`
	BatchSize int    `json:"commit_batch_size"`
	MaxCases  int    `json:"max_cases,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

type SeedRolesInput struct {
	Spec ImportSpec `json:"spec"`
}

type ImportTaxonomyInput struct {
	Spec ImportSpec `json:"spec"`
}

type StageOutput struct {
	Summary importer.Summary `json:"summary"`
}

type ImportCaseBatchInput struct {
	Spec   ImportSpec `json:"spec"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
}

type ImportCaseBatchOutput struct {
	Summary importer.Summary `json:"summary"`
	Cursor  importer.Cursor  `json:"cursor"`
}

type WriteImportSummaryInput struct {
	RunID   string           `json:"run_id"`
	Summary importer.Summary `json:"summary"`
}

type WriteImportSummaryOutput struct {
	SummaryPath  string `json:"summary_path"`
	WarningsPath string `json:"warnings_path"`
}
