package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// ExecuteFlowRequest is the wire shape for starting a run (§6.1).
type ExecuteFlowRequest struct {
	Input     map[string]any `json:"input"`
	Trigger   map[string]any `json:"trigger"`
	Owner     string         `json:"owner"`
	TimeoutMs int            `json:"timeoutMs"`
}

// ExecutionResponse mirrors the accepted execution back to the caller.
type ExecutionResponse struct {
	ExecutionID string `json:"executionId"`
	FlowID      string `json:"flowId"`
	Status      string `json:"status"`
}

// ExecutionRecordResponse mirrors a persisted flowengine.ExecutionRecord.
type ExecutionRecordResponse struct {
	ID          string                        `json:"id"`
	FlowID      string                        `json:"flowId"`
	Owner       string                        `json:"owner"`
	Status      string                        `json:"status"`
	Outputs     map[string]any                `json:"outputs,omitempty"`
	NodeResults []domain.NodeExecutionRecord  `json:"nodeResults,omitempty"`
	Error       string                        `json:"error,omitempty"`
	StartedAt   int64                         `json:"startedAt"`
	FinishedAt  int64                         `json:"finishedAt,omitempty"`
}

func toExecutionRecordResponse(rec *flowengine.ExecutionRecord) ExecutionRecordResponse {
	return ExecutionRecordResponse{
		ID: rec.ID, FlowID: rec.FlowID, Owner: rec.Owner, Status: rec.Status,
		Outputs: rec.Outputs, NodeResults: rec.NodeResults, Error: rec.Error,
		StartedAt: rec.StartedAt, FinishedAt: rec.FinishedAt,
	}
}

// handleExecuteFlow starts a run in the background and returns its
// execution id immediately (§6.1); poll GET /executions/{id} for outcome.
func (s *Server) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")
	flow, err := s.store.LoadFlow(r.Context(), flowID)
	if err != nil {
		respondError(w, http.StatusNotFound, "flow not found")
		return
	}

	var req ExecuteFlowRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	opts := flowengine.ExecuteOptions{
		ExecutionID: uuid.NewString(),
		Input:       req.Input,
		Trigger:     req.Trigger,
		Owner:       req.Owner,
	}
	if req.TimeoutMs > 0 {
		opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	go func() {
		if _, err := s.engine.Execute(context.Background(), flow, opts); err != nil {
			s.logger.Error("execution failed to start", "execution_id", opts.ExecutionID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, ExecutionResponse{ExecutionID: opts.ExecutionID, FlowID: flow.ID(), Status: "pending"})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, toExecutionRecordResponse(rec))
}

func (s *Server) handleListActiveExecutions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListActive(r.Context())
	if err != nil {
		s.logger.Error("failed to list active executions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]ExecutionRecordResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toExecutionRecordResponse(&recs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.engine.Cancel(id) {
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
		return
	}
	respondError(w, http.StatusNotFound, "no active execution with that id")
}
