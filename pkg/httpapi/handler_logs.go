package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/warrenflow/pkg/logsink"
	"github.com/cuemby/warrenflow/pkg/types"
)

func (s *Server) handleLogsCreate(w http.ResponseWriter, r *http.Request) {
	var entry types.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if !authorizedForProject(r, entry.Project) {
		writeError(w, http.StatusForbidden, "forbidden_project", "API key is not scoped to this project")
		return
	}

	id, err := s.Sink.Append(&entry)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleLogsBatchCreate(w http.ResponseWriter, r *http.Request) {
	var entries []*types.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	for _, e := range entries {
		if !authorizedForProject(r, e.Project) {
			writeError(w, http.StatusForbidden, "forbidden_project", "API key is not scoped to project "+e.Project)
			return
		}
	}

	ids, err := s.Sink.AppendBatch(entries)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (s *Server) handleLogsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := parseLogQuery(q)

	// Reads are filtered to authorized projects, not rejected: an
	// unscoped project request returns an empty result.
	if query.Project != "" && !authorizedForProject(r, query.Project) {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []any{}})
		return
	}

	entries, err := s.Sink.List(query)
	if err != nil {
		writeErr(w, err)
		return
	}
	entries = filterToAuthorizedProjects(r, entries)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleLogsStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Sink.Stats()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogsGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.Sink.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "log entry not found")
		return
	}
	if !authorizedForProject(r, entry.Project) {
		writeError(w, http.StatusNotFound, "not_found", "log entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleLogsCleanup runs the age-based retention pass: compress,
// cleanup, expire, per RunMaintenance's ordering. This is the
// non-destructive prune the scheduled maintenance task also runs.
func (s *Server) handleLogsCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.Sink.RunMaintenance(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogsCleanupAll hard-deletes every live log entry regardless of
// age, scoped to the project query param if given, or to every
// project the caller's key is authorized for otherwise. There is no
// unscoped-admin key: a caller can only ever purge what its
// allowed_projects list names, same as every other endpoint.
func (s *Server) handleLogsCleanupAll(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project != "" {
		if !authorizedForProject(r, project) {
			writeError(w, http.StatusForbidden, "forbidden_project", "API key is not scoped to this project")
			return
		}
		n, err := s.Sink.PurgeAll(project)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": n})
		return
	}

	projects := callerAuthorizedProjects(r)
	if len(projects) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "API key is not scoped to any project")
		return
	}
	total := 0
	for _, p := range projects {
		n, err := s.Sink.PurgeAll(p)
		if err != nil {
			writeErr(w, err)
			return
		}
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": total})
}

func parseLogQuery(q url.Values) logsink.Query {
	get := func(key string) string { return q.Get(key) }

	limit := 100
	if v := get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	offset := 0
	if v := get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	var start, end time.Time
	if v := get("start_date"); v != "" {
		start, _ = time.Parse(time.RFC3339, v)
	}
	if v := get("end_date"); v != "" {
		end, _ = time.Parse(time.RFC3339, v)
	}

	return logsink.Query{
		Project:    get("project"),
		Level:      get("level"),
		Module:     get("module"),
		DocumentID: get("document_id"),
		FileName:   get("file_name"),
		StartDate:  start,
		EndDate:    end,
		SortBy:     get("sort_by"),
		SortOrder:  get("sort_order"),
		Limit:      limit,
		Offset:     offset,
	}
}
