package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/kthread/internal/workload"
	"github.com/me/kthread/pkg/model"
)

// runDetail is a run together with the size of its recorded trace.
type runDetail struct {
	*model.Run
	Events int `json:"events"`
	Tasks  int `json:"tasks"`
}

// runResult is the response to POST /runs.
type runResult struct {
	Run    *model.Run       `json:"run"`
	Tasks  []model.TaskInfo `json:"tasks"`
	Output []string         `json:"output"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	respondList(w, reqID, runs, opts.Page(total))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, ok := s.lookupRun(w, r, id)
	if !ok {
		return
	}
	events, err := s.store.ListSwitchEvents(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	tasks, err := s.store.ListTaskSnapshot(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, runDetail{Run: run, Events: len(events), Tasks: len(tasks)})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, ok := s.lookupRun(w, r, id)
	if !ok {
		return
	}
	if !run.Status.IsTerminal() {
		respondError(w, reqID, http.StatusConflict,
			model.NewValidationError("run "+id+" is still running"))
		return
	}
	if err := s.store.DeleteRun(r.Context(), id); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"id": id, "deleted": "true"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, ok := s.lookupRun(w, r, id); !ok {
		return
	}
	events, err := s.store.ListSwitchEvents(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if events == nil {
		events = []model.SwitchEvent{}
	}
	respondOK(w, reqID, events)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, ok := s.lookupRun(w, r, id); !ok {
		return
	}
	tasks, err := s.store.ListTaskSnapshot(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if tasks == nil {
		tasks = []model.TaskInfo{}
	}
	respondOK(w, reqID, tasks)
}

// handleCreateRun executes the scenario in the request body and returns
// once the run has finished. The handler's goroutine becomes the main
// task of the run's kernel.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.runner == nil {
		respondError(w, reqID, http.StatusNotImplemented,
			&model.APIError{Code: model.ErrInternal, Message: "scenario execution is disabled"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScenarioBytes))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("read body: "+err.Error()))
		return
	}
	sc, err := workload.ParseScenario(body)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = model.NewValidationError(err.Error())
		}
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	res, err := s.runner.Run(r.Context(), sc)
	if err != nil && res == nil {
		respondInternal(w, reqID, err)
		return
	}
	if err != nil {
		s.logger.Warn("run finished with error", "run_id", res.Run.ID, "error", err)
	}
	respondCreated(w, reqID, runResult{Run: res.Run, Tasks: res.Tasks, Output: res.Output})
}

// lookupRun fetches a run, writing the error response when it fails.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request, id string) (*model.Run, bool) {
	reqID := RequestIDFromContext(r.Context())
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return nil, false
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil, false
	}
	return run, true
}
