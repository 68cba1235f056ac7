package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"readerstudy/internal/activities"
	"readerstudy/internal/config"
	"readerstudy/internal/importer"
	"readerstudy/internal/logger"
	"readerstudy/internal/models"
	"readerstudy/internal/storage"
	"readerstudy/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

// WorkflowClient is the part of the Temporal client the API uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Server struct {
	cfg      config.Config
	outputs  storage.OutputReader
	temporal WorkflowClient
	log      *logger.Logger
}

func NewServer(cfg config.Config, outputs storage.OutputReader, tc WorkflowClient, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{cfg: cfg, outputs: outputs, temporal: tc, log: log}
}

func WorkflowID(runID string) string {
	return "import-" + runID
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/imports", s.handleImports)
	mux.HandleFunc("/imports/", s.handleImportsScoped)
	mux.HandleFunc("/cases/", s.handleCasesScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		TermsPath string `json:"terms_path"`
		CasesPath string `json:"cases_path"`
		BatchSize int    `json:"commit_batch_size"`
		MaxCases  int    `json:"max_cases"`
		TopK      int    `json:"top_k"`
		DryRun    bool   `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.TermsPath = strings.TrimSpace(req.TermsPath)
	req.CasesPath = strings.TrimSpace(req.CasesPath)
	if req.TermsPath == "" || req.CasesPath == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("terms_path and cases_path are required"))
		return
	}
	if req.DryRun {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("dry_run is only supported by the cli"))
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.cfg.CommitBatchSize
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.TopK
	}

	runID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       WorkflowID(runID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.ImportWorkflow, workflows.ImportInput{
		RunID:     runID,
		TermsPath: req.TermsPath,
		CasesPath: req.CasesPath,
		BatchSize: req.BatchSize,
		MaxCases:  req.MaxCases,
		TopK:      req.TopK,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			writeErr(w, http.StatusConflict, err)
			return
		}
		s.log.Error("start import workflow", "run_id", runID, "error", err)
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	s.log.Info("import started", "run_id", runID, "workflow_id", we.GetID())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":          runID,
		"workflow_id":     we.GetID(),
		"workflow_run_id": we.GetRunID(),
	})
}

func (s *Server) handleImportsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/imports/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	runID := parts[0]
	if _, err := uuid.Parse(runID); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid run id %q", runID))
		return
	}

	switch {
	case len(parts) == 1:
		var prog workflows.ImportProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), WorkflowID(runID), "", workflows.QueryGetImportProgress)
		if err != nil {
			// The workflow may be gone from visibility; the written summary still answers.
			sum, sErr := s.readSummary(runID)
			if sErr != nil {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, workflows.ImportProgress{
				RunID:       runID,
				Status:      workflows.StatusCompleted,
				Stage:       "done",
				CaseRows:    sum.CaseRows,
				Cases:       sum.Cases,
				AIOutputs:   sum.AIOutputs,
				Warnings:    len(sum.Warnings),
				SummaryPath: activities.SummaryPath(s.cfg.SummaryOutRoot, runID),
			})
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
	case len(parts) == 2 && parts[1] == "summary":
		sum, err := s.readSummary(runID)
		if errors.Is(err, os.ErrNotExist) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("summary not written yet"))
			return
		}
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) readSummary(runID string) (importer.Summary, error) {
	var sum importer.Summary
	b, err := os.ReadFile(activities.SummaryPath(s.cfg.SummaryOutRoot, runID))
	if err != nil {
		return sum, err
	}
	if err := json.Unmarshal(b, &sum); err != nil {
		return sum, fmt.Errorf("decode summary: %w", err)
	}
	return sum, nil
}

func (s *Server) handleCasesScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/cases/"), "/"), "/")
	if len(parts) != 2 || parts[1] != "ai-outputs" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	caseID, err := strconv.Atoi(parts[0])
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid case id %q", parts[0]))
		return
	}
	outs, err := s.outputs.ListAIOutputs(r.Context(), caseID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if outs == nil {
		outs = []models.AIOutput{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"case_id": caseID, "ai_outputs": outs})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "RS-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"),
			strings.Contains(raw, "no such table"):
			return apiError{
				Code:    "RS-DB-5001",
				Message: "Database schema is not initialized. Run `readerstudy migrate` and retry.",
			}
		case status == http.StatusBadGateway:
			return apiError{
				Code:    "RS-API-5020",
				Message: "Workflow service unavailable. Check the Temporal server and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "RS-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "RS-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "RS-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "RS-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "RS-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "RS-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "terms_path and cases_path are required"):
			msg = "Both terms_path and cases_path are required."
		case strings.Contains(raw, "dry_run"):
			msg = "Dry runs are only available from the readerstudy CLI."
		case strings.Contains(raw, "invalid run id"):
			msg = "Run id must be a UUID."
		case strings.Contains(raw, "invalid case id"):
			msg = "Case id must be an integer."
		case strings.Contains(raw, "summary not written yet"):
			msg = "The import has not written its summary yet."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
