package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"readerstudy/internal/importer"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"
)

func writeSources(t *testing.T, dir string) (string, string) {
	t.Helper()
	terms := filepath.Join(dir, "terms.csv")
	cases := filepath.Join(dir, "cases.csv")
	require.NoError(t, os.WriteFile(terms, []byte("id,canonical,type,alias\n1,Eczema,,\n2,Psoriasis,,\n2,Psoriasis,synonym,Plaque psoriasis\n"), 0o644))
	require.NoError(t, os.WriteFile(cases, []byte("case_id,image_path,gt,1,2,9\n1,a.jpg,1,0.6,0.4,0.1\n2,b.jpg,5,0.5,0.5,\n"), 0o644))
	return terms, cases
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("READERSTUDY_STORE_DRIVER", "memory")
	t.Setenv("READERSTUDY_LOG_MODE", "prod")
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestImportCommandPrintsSummary(t *testing.T) {
	dir := t.TempDir()
	terms, cases := writeSources(t, dir)
	summaryPath := filepath.Join(dir, "out", "summary.yaml")

	out, err := runCLI(t, "import", "--terms", terms, "--cases", cases, "--format", "json", "--summary-out", summaryPath)
	require.NoError(t, err)

	var sum importer.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Equal(t, importer.Count{Created: 1, Rejected: 1}, sum.Cases)
	require.Equal(t, importer.Count{Created: 2}, sum.AIOutputs)
	require.Equal(t, importer.Count{Created: 1}, sum.Synonyms)
	require.Len(t, sum.Warnings, 2)

	raw, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var fromFile importer.Summary
	require.NoError(t, yaml.Unmarshal(raw, &fromFile))
	require.Equal(t, sum.RunID, fromFile.RunID)
	require.Equal(t, sum.Cases, fromFile.Cases)
}

func TestImportCommandDryRun(t *testing.T) {
	terms, cases := writeSources(t, t.TempDir())
	out, err := runCLI(t, "import", "--terms", terms, "--cases", cases, "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "dry_run: true")
}

func TestImportCommandBadHeaderFails(t *testing.T) {
	dir := t.TempDir()
	terms, cases := writeSources(t, dir)
	require.NoError(t, os.WriteFile(cases, []byte("case,image_path,gt\n1,a.jpg,1\n"), 0o644))

	_, err := runCLI(t, "import", "--terms", terms, "--cases", cases)
	require.ErrorIs(t, err, importer.ErrBadHeader)
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("READERSTUDY_SQLITE_PATH", filepath.Join(dir, "rs.db"))
	_, err := runCLI(t, "migrate", "--store", "sqlite")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "rs.db"))
	require.NoError(t, err)
}
