package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ahrav/reconaug/internal/api/sim"
	"github.com/ahrav/reconaug/internal/domain/scanning"
)

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Domain string `json:"domain"`
	Status string `json:"status"`
}

// taskDocument is the status view of a task, shared by the task endpoint and
// the event stream.
type taskDocument struct {
	ID              string `json:"id"`
	Domain          string `json:"domain"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	Message         string `json:"message"`
	Complete        bool   `json:"complete"`
	SubdomainsCount int    `json:"subdomains_count"`
	LiveHostsCount  int    `json:"live_hosts_count"`
	Error           string `json:"error,omitempty"`
	Timestamp       string `json:"timestamp"`
}

func newTaskDocument(t sim.Task) taskDocument {
	return taskDocument{
		ID:              t.ID,
		Domain:          t.Domain,
		Status:          t.Status.String(),
		Progress:        t.Progress,
		Message:         t.Message,
		Complete:        t.Complete,
		SubdomainsCount: t.SubdomainsCount,
		LiveHostsCount:  t.LiveHostsCount,
		Error:           t.Error,
		Timestamp:       t.UpdatedAt.Format("2006-01-02T15:04:05.999999"),
	}
}

type liveHostDocument struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Technology string `json:"technology,omitempty"`
}

// taskResultDocument is returned for completed tasks. The status fields stay
// nested under "task".
type taskResultDocument struct {
	Task            taskDocument       `json:"task"`
	Domain          string             `json:"domain"`
	Subdomains      []string           `json:"subdomains"`
	SubdomainsCount int                `json:"subdomains_count"`
	LiveHosts       []liveHostDocument `json:"live_hosts"`
	LiveHostsCount  int                `json:"live_hosts_count"`
}

type historicalURLsDocument struct {
	Domain  string   `json:"domain"`
	Count   int      `json:"count"`
	URLs    []string `json:"urls"`
	Limited bool     `json:"limited"`
}

type portDocument struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
}

type portScanDocument struct {
	Host  string         `json:"host"`
	Count int            `json:"count"`
	Ports []portDocument `json:"ports"`
}

type scanRecordDocument struct {
	ID              int64  `json:"id"`
	Domain          string `json:"domain"`
	Timestamp       string `json:"timestamp"`
	Status          string `json:"status"`
	SubdomainsCount int    `json:"subdomains_count"`
	LiveHostsCount  int    `json:"live_hosts_count"`
}

type scanHistoryDocument struct {
	Scans []scanRecordDocument `json:"scans"`
}

type clearHistoryDocument struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.IncScanRequestsTotal(ctx)

	if err := r.ParseForm(); err != nil {
		s.metrics.IncScanRequestErrors(ctx, "bad_form")
		respondError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	task, err := s.tasks.Submit(r.PostFormValue("domain"))
	switch {
	case errors.Is(err, sim.ErrDomainRequired):
		s.metrics.IncScanRequestErrors(ctx, "domain_required")
		respondError(w, http.StatusBadRequest, "Domain is required")
		return
	case errors.Is(err, sim.ErrInvalidDomain):
		s.metrics.IncScanRequestErrors(ctx, "invalid_domain")
		respondError(w, http.StatusBadRequest, "Invalid domain format")
		return
	case errors.Is(err, sim.ErrClosed):
		s.metrics.IncScanRequestErrors(ctx, "shutting_down")
		respondError(w, http.StatusServiceUnavailable, "Service is shutting down")
		return
	case err != nil:
		s.metrics.IncScanRequestErrors(ctx, "internal")
		s.logger.Error(ctx, "failed to submit scan", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, submitResponse{TaskID: task.ID, Domain: task.Domain, Status: "started"})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "Task not found")
		return
	}

	if task.Status != scanning.TaskStatusComplete || task.Result == nil {
		respondJSON(w, http.StatusOK, newTaskDocument(task))
		return
	}

	res := task.Result
	hosts := make([]liveHostDocument, 0, len(res.LiveHosts))
	for _, h := range res.LiveHosts {
		hosts = append(hosts, liveHostDocument{URL: h.URL, StatusCode: h.StatusCode, Technology: h.Technology})
	}
	respondJSON(w, http.StatusOK, taskResultDocument{
		Task:            newTaskDocument(task),
		Domain:          res.Domain,
		Subdomains:      res.Subdomains,
		SubdomainsCount: res.SubdomainsCount(),
		LiveHosts:       hosts,
		LiveHostsCount:  res.LiveHostsCount(),
	})
}

// handleTaskEvents streams a task's status as server-sent events, one frame
// per change, and ends the stream once the task finished.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	rc := http.NewResponseController(w)

	if _, ok := s.tasks.Get(id); !ok {
		respondError(w, http.StatusNotFound, "Task not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	s.metrics.IncEventStreamsOpened(ctx)

	var last string
	for {
		task, changed, ok := s.tasks.Watch(id)
		if !ok {
			// Swept while streaming.
			_ = writeEvent(w, errorResponse{Error: "Task not found"})
			_ = rc.Flush()
			return
		}

		key := fmt.Sprintf("%s-%d-%s", task.Status, task.Progress, task.Message)
		if key != last {
			if err := writeEvent(w, newTaskDocument(task)); err != nil {
				s.logger.Debug(ctx, "event stream closed", "task_id", id, "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				s.logger.Debug(ctx, "event stream flush failed", "task_id", id, "error", err)
				return
			}
			s.metrics.IncEventsSent(ctx)
			last = key
		}

		if task.Complete {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.tasks.Done():
			s.logger.Debug(ctx, "event stream closed by shutdown", "task_id", id)
			return
		case <-changed:
		}
	}
}

func writeEvent(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleHistoricalURLs(w http.ResponseWriter, r *http.Request) {
	res, err := sim.HistoricalURLs(r.URL.Query().Get("domain"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Domain is required")
		return
	}
	respondJSON(w, http.StatusOK, historicalURLsDocument{
		Domain:  res.Domain,
		Count:   res.Count,
		URLs:    res.URLs,
		Limited: res.Limited,
	})
}

func (s *Server) handleScanPorts(w http.ResponseWriter, r *http.Request) {
	res, err := sim.ScanPorts(r.URL.Query().Get("host"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Host is required")
		return
	}

	ports := make([]portDocument, 0, len(res.Ports))
	for _, p := range res.Ports {
		ports = append(ports, portDocument{Port: p.Port, Service: p.Service})
	}
	respondJSON(w, http.StatusOK, portScanDocument{Host: res.Host, Count: len(ports), Ports: ports})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sim.Tools())
}

func (s *Server) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	records := s.tasks.History()
	doc := scanHistoryDocument{Scans: make([]scanRecordDocument, 0, len(records))}
	for _, rec := range records {
		doc.Scans = append(doc.Scans, scanRecordDocument{
			ID:              rec.ID,
			Domain:          rec.Domain,
			Timestamp:       rec.Timestamp.Format("2006-01-02T15:04:05.999999"),
			Status:          rec.Status,
			SubdomainsCount: rec.SubdomainsCount,
			LiveHostsCount:  rec.LiveHostsCount,
		})
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.tasks.ClearHistory()
	s.logger.Info(r.Context(), "scan history cleared")
	respondJSON(w, http.StatusOK, clearHistoryDocument{Message: "Database cleared successfully", Status: "success"})
}
