package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"readerstudy/internal/activities"
	"readerstudy/internal/config"
	"readerstudy/internal/importer"
	"readerstudy/internal/models"
	"readerstudy/internal/storage"
	"readerstudy/internal/util"
	"readerstudy/internal/workflows"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

type fakeRun struct {
	tclient.WorkflowRun
	id string
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return "temporal-run-1" }

type fakeClient struct {
	startErr error
	started  []workflows.ImportInput
	options  []tclient.StartWorkflowOptions
	progress map[string]workflows.ImportProgress
}

func (c *fakeClient) ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.options = append(c.options, options)
	c.started = append(c.started, args[0].(workflows.ImportInput))
	return fakeRun{id: options.ID}, nil
}

func (c *fakeClient) QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error) {
	p, ok := c.progress[workflowID]
	if !ok {
		return nil, errors.New("workflow not found for ID: " + workflowID)
	}
	payloads, err := converter.GetDefaultDataConverter().ToPayloads(p)
	if err != nil {
		return nil, err
	}
	return tclient.NewValue(payloads), nil
}

func newTestServer(t *testing.T) (*Server, *fakeClient, *storage.MemoryStore) {
	t.Helper()
	cfg := config.Config{
		TemporalTaskQueue: "readerstudy-import",
		CommitBatchSize:   200,
		TopK:              3,
		SummaryOutRoot:    t.TempDir(),
	}
	fc := &fakeClient{progress: map[string]workflows.ImportProgress{}}
	store := storage.NewMemoryStore()
	return NewServer(cfg, store, fc, nil), fc, store
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func errCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok)
	return e["code"].(string)
}

func TestStartImport(t *testing.T) {
	s, fc, _ := newTestServer(t)
	h := s.Routes()

	rec, body := do(t, h, http.MethodPost, "/imports", `{"terms_path":"data/terms.csv","cases_path":"data/cases.csv","max_cases":50}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	runID := body["run_id"].(string)
	_, err := uuid.Parse(runID)
	require.NoError(t, err)
	require.Equal(t, WorkflowID(runID), body["workflow_id"])

	require.Len(t, fc.started, 1)
	require.Equal(t, workflows.ImportInput{
		RunID: runID, TermsPath: "data/terms.csv", CasesPath: "data/cases.csv",
		BatchSize: 200, MaxCases: 50, TopK: 3,
	}, fc.started[0])
	require.Equal(t, "readerstudy-import", fc.options[0].TaskQueue)
}

func TestStartImportValidation(t *testing.T) {
	s, fc, _ := newTestServer(t)
	h := s.Routes()

	rec, body := do(t, h, http.MethodPost, "/imports", `{"terms_path":"t.csv"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "RS-API-4001", errCode(t, body))

	rec, _ = do(t, h, http.MethodPost, "/imports", `{"terms_path":"t.csv","cases_path":"c.csv","dry_run":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/imports", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/imports", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "RS-API-4005", errCode(t, body))
	require.Empty(t, fc.started)
}

func TestStartImportWorkflowErrors(t *testing.T) {
	s, fc, _ := newTestServer(t)
	h := s.Routes()
	body := `{"terms_path":"t.csv","cases_path":"c.csv"}`

	fc.startErr = &serviceerror.WorkflowExecutionAlreadyStarted{Message: "workflow execution already started"}
	rec, out := do(t, h, http.MethodPost, "/imports", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "RS-API-4009", errCode(t, out))

	fc.startErr = fmt.Errorf("start workflow: %w", errors.New("dial tcp 127.0.0.1:7233: connection refused"))
	rec, out = do(t, h, http.MethodPost, "/imports", body)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "RS-API-5020", errCode(t, out))
}

func TestImportProgressAndSummary(t *testing.T) {
	s, fc, _ := newTestServer(t)
	h := s.Routes()
	runID := uuid.NewString()

	rec, body := do(t, h, http.MethodGet, "/imports/"+runID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "RS-API-4004", errCode(t, body))

	fc.progress[WorkflowID(runID)] = workflows.ImportProgress{RunID: runID, Status: workflows.StatusRunning, Stage: "cases", Batches: 2}
	rec, body = do(t, h, http.MethodGet, "/imports/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cases", body["stage"])
	require.EqualValues(t, 2, body["batches"])

	rec, _ = do(t, h, http.MethodGet, "/imports/"+runID+"/summary", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	sum := importer.Summary{RunID: runID, CaseRows: 4, Cases: importer.Count{Created: 3, Rejected: 1}}
	require.NoError(t, util.WriteJSONAtomic(activities.SummaryPath(s.cfg.SummaryOutRoot, runID), sum))
	rec, body = do(t, h, http.MethodGet, "/imports/"+runID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, runID, body["run_id"])

	delete(fc.progress, WorkflowID(runID))
	rec, body = do(t, h, http.MethodGet, "/imports/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, workflows.StatusCompleted, body["status"])
	require.EqualValues(t, 4, body["case_rows"])

	rec, _ = do(t, h, http.MethodGet, "/imports/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaseOutputs(t *testing.T) {
	s, _, store := newTestServer(t)
	h := s.Routes()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTerm(ctx, models.CanonicalTerm{ID: 1, Name: "Eczema"}))
	require.NoError(t, tx.CreateTerm(ctx, models.CanonicalTerm{ID: 2, Name: "Psoriasis"}))
	require.NoError(t, tx.CreateCase(ctx, models.Case{ID: 7, GroundTruthTermID: 1, Probabilities: models.ProbabilityVector{1: 0.8, 2: 0.2}}))
	require.NoError(t, tx.CreateAIOutput(ctx, models.AIOutput{CaseID: 7, Rank: 1, TermID: 1, Confidence: 0.8}))
	require.NoError(t, tx.CreateAIOutput(ctx, models.AIOutput{CaseID: 7, Rank: 2, TermID: 2, Confidence: 0.2}))
	require.NoError(t, tx.Commit(ctx))

	rec, body := do(t, h, http.MethodGet, "/cases/7/ai-outputs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	outs := body["ai_outputs"].([]any)
	require.Len(t, outs, 2)
	first := outs[0].(map[string]any)
	require.EqualValues(t, 1, first["rank"])
	require.EqualValues(t, 1, first["prediction_id"])

	rec, body = do(t, h, http.MethodGet, "/cases/8/ai-outputs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, body["ai_outputs"])

	rec, _ = do(t, h, http.MethodGet, "/cases/abc/ai-outputs", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndCORS(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Routes()
	rec, body := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/imports", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
