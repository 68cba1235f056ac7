package activities

import (
	"os"
	"path/filepath"
	"testing"

	"readerstudy/internal/config"
	"readerstudy/internal/importer"
	"readerstudy/internal/models"
	"readerstudy/internal/storage"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func fixture(t *testing.T) (config.Config, ImportSpec) {
	t.Helper()
	dir := t.TempDir()
	terms := filepath.Join(dir, "terms.csv")
	cases := filepath.Join(dir, "cases.csv")
	require.NoError(t, os.WriteFile(terms, []byte("id,canonical,type,alias\n1,Eczema,,\n2,Psoriasis,,\n"), 0o644))
	require.NoError(t, os.WriteFile(cases, []byte("case_id,image_path,gt,1,2\n1,a.jpg,1,0.9,0.1\n2,b.jpg,2,0.2,0.8\n3,c.jpg,2,0.3,0.3\n"), 0o644))
	cfg := config.Config{CommitBatchSize: 2, TopK: 3, SummaryOutRoot: filepath.Join(dir, "imports")}
	return cfg, ImportSpec{RunID: "run-1", TermsPath: terms, CasesPath: cases, BatchSize: 2}
}

func TestImportActivities(t *testing.T) {
	cfg, spec := fixture(t)
	store := storage.NewMemoryStore()
	a := New(cfg, store, nil, []string{"GP"})

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.SeedRolesActivity, SeedRolesInput{Spec: spec})
	require.NoError(t, err)
	var roles StageOutput
	require.NoError(t, val.Get(&roles))
	require.Equal(t, 1, roles.Summary.Roles.Created)

	val, err = env.ExecuteActivity(a.ImportTaxonomyActivity, ImportTaxonomyInput{Spec: spec})
	require.NoError(t, err)
	var terms StageOutput
	require.NoError(t, val.Get(&terms))
	require.Equal(t, 2, terms.Summary.Terms.Created)

	val, err = env.ExecuteActivity(a.ImportCaseBatchActivity, ImportCaseBatchInput{Spec: spec, Offset: 0, Limit: 2})
	require.NoError(t, err)
	var first ImportCaseBatchOutput
	require.NoError(t, val.Get(&first))
	require.Equal(t, importer.Cursor{Offset: 2}, first.Cursor)
	require.Equal(t, 2, first.Summary.Cases.Created)

	val, err = env.ExecuteActivity(a.ImportCaseBatchActivity, ImportCaseBatchInput{Spec: spec, Offset: 2, Limit: 2})
	require.NoError(t, err)
	var second ImportCaseBatchOutput
	require.NoError(t, val.Get(&second))
	require.True(t, second.Cursor.Done)
	require.Equal(t, 1, second.Summary.Cases.Created)
	require.Equal(t, 3, store.Counts()["cases"])
	require.Equal(t, 6, store.Counts()["ai_outputs"])
}

func TestImportCaseBatchBadHeaderIsNonRetryable(t *testing.T) {
	cfg, spec := fixture(t)
	require.NoError(t, os.WriteFile(spec.CasesPath, []byte("case_id,image_path,1\n1,a.jpg,0.5\n"), 0o644))
	a := New(cfg, storage.NewMemoryStore(), nil, nil)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.ImportCaseBatchActivity, ImportCaseBatchInput{Spec: spec, Limit: 2})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.True(t, appErr.NonRetryable())
	require.Equal(t, ErrTypeBadSource, appErr.Type())
}

func TestWriteImportSummaryActivity(t *testing.T) {
	cfg, _ := fixture(t)
	a := New(cfg, storage.NewMemoryStore(), nil, nil)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	sum := importer.Summary{RunID: "run-9", Warnings: []models.Warning{
		models.Warnf(models.WarnUnknownReference, 4, "case 3 references unknown ground truth term 9; row skipped"),
	}}
	val, err := env.ExecuteActivity(a.WriteImportSummaryActivity, WriteImportSummaryInput{RunID: "run-9", Summary: sum})
	require.NoError(t, err)
	var out WriteImportSummaryOutput
	require.NoError(t, val.Get(&out))
	require.Equal(t, SummaryPath(cfg.SummaryOutRoot, "run-9"), out.SummaryPath)

	raw, err := os.ReadFile(out.SummaryPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"run_id": "run-9"`)
	lines, err := os.ReadFile(out.WarningsPath)
	require.NoError(t, err)
	require.Contains(t, string(lines), "unknown_reference")
}
