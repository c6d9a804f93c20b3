package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type runRequest struct {
	EventID string         `json:"event_id"`
	Payload map[string]any `json:"payload"`
}

// handleWorkflowRunCreate launches Engine.Start, which drives the run
// synchronously to completion, in a goroutine. After a 20ms pause it
// answers 202 with the most recently started checkpointed run of this
// workflow, or {"status":"starting"} when none is checkpointed yet;
// that run is not necessarily the one this request started.
func (s *Server) handleWorkflowRunCreate(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	wf, ok := s.Workflows.Get(workflowID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown workflow_id")
		return
	}

	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
	}

	go func() {
		if _, err := s.Engine.Start(context.Background(), wf, req.EventID, req.Payload); err != nil {
			s.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("run failed to start")
		}
	}()

	// The run_id is assigned inside Start; give it a moment to
	// checkpoint before the caller polls for it.
	time.Sleep(20 * time.Millisecond)

	runs, err := s.Runs.ListRuns(workflowID)
	if err != nil || len(runs) == 0 {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusAccepted, runs[0])
}

func (s *Server) handleWorkflowRunList(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")
	runs, err := s.Runs.ListRuns(workflowID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleWorkflowRunGet(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.Runs.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown run_id")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleWorkflowRunCancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	s.Engine.Cancel(runID, s.CancelGrace)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
