package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
)

type report struct {
	RunID string `json:"run_id" yaml:"run_id"`
	Cases int    `json:"cases" yaml:"cases"`
}

func TestWriteReportAtomicPicksFormat(t *testing.T) {
	dir := t.TempDir()
	in := report{RunID: "r1", Cases: 3}

	jsonPath := filepath.Join(dir, "nested", "summary.json")
	if err := WriteReportAtomic(jsonPath, in); err != nil {
		t.Fatalf("write json: %v", err)
	}
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var gotJSON report
	if err := json.Unmarshal(b, &gotJSON); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if gotJSON != in {
		t.Fatalf("json round trip mismatch: %+v", gotJSON)
	}

	yamlPath := filepath.Join(dir, "summary.yaml")
	if err := WriteReportAtomic(yamlPath, in); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	b, err = os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("read yaml: %v", err)
	}
	if !strings.Contains(string(b), "run_id: r1") {
		t.Fatalf("unexpected yaml: %s", b)
	}
	var gotYAML report
	if err := yaml.Unmarshal(b, &gotYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if gotYAML != in {
		t.Fatalf("yaml round trip mismatch: %+v", gotYAML)
	}
}

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.csv")
	if err := os.WriteFile(path, []byte("id,canonical,type,alias\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := SHA256File(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	want := sha256.Sum256([]byte("id,canonical,type,alias\n"))
	if got != hex.EncodeToString(want[:]) {
		t.Fatalf("unexpected digest %s", got)
	}
	if _, err := SHA256File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWriteJSONLinesAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warnings.jsonl")
	rows := []report{{RunID: "a", Cases: 1}, {RunID: "b", Cases: 2}}
	if err := WriteJSONLinesAtomic(path, rows); err != nil {
		t.Fatalf("write jsonl: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), b)
	}
}
