// Package api exposes the issue board over HTTP for browser and script
// clients: issue CRUD with the pre-write duplicate check, user lookup,
// and a server-sent-events stream of board snapshots.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mfeld/trk/internal/board"
	"github.com/mfeld/trk/internal/dedupe"
	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	detector *dedupe.Detector
	watcher  *board.Watcher

	// checkEnabled mirrors the dedupe.enabled config: when false, POST
	// /issues never warns about duplicates.
	checkEnabled bool
}

// NewServer creates a new API server.
func NewServer(s store.Store, checkEnabled bool) *Server {
	return &Server{
		store:        s,
		detector:     dedupe.NewDetector(s, 0),
		watcher:      board.NewWatcher(s, 0),
		checkEnabled: checkEnabled,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("POST /api/v1/issues/check", s.checkIssue)
	mux.HandleFunc("GET /api/v1/issues/events", s.streamIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}/status", s.updateIssueStatus)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)

	mux.HandleFunc("GET /api/v1/users", s.listUsers)
	mux.HandleFunc("POST /api/v1/users", s.createUser)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Email")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeStatus maps classified store failures onto HTTP status codes.
func storeStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IssueListFilter{
		Status:     models.IssueStatus(q.Get("status")),
		Priority:   models.IssuePriority(q.Get("priority")),
		AssignedTo: q.Get("assigned_to"),
		CreatedBy:  q.Get("created_by"),
	}

	issues, err := s.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type createIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	AssignedTo  string `json:"assigned_to"`
	// Force skips the duplicate warning, the API equivalent of the
	// "Create Anyway" button.
	Force bool `json:"force"`
}

type candidateOut struct {
	Issue *models.Issue `json:"issue"`
	Score float64       `json:"score"`
}

type duplicateWarning struct {
	Error      string         `json:"error"`
	Candidates []candidateOut `json:"candidates"`
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	priority := models.IssuePriority(req.Priority)
	if priority == "" {
		priority = models.IssuePriorityMedium
	}
	if !models.ValidPriority(priority) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown priority: %s", req.Priority))
		return
	}

	if s.checkEnabled && !req.Force {
		if has, candidates := s.detector.Detect(r.Context(), req.Title); has {
			writeJSON(w, http.StatusConflict, duplicateWarning{
				Error:      "similar issues already exist; retry with force to create anyway",
				Candidates: toCandidateOut(candidates),
			})
			return
		}
	}

	issue := &models.Issue{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.IssueStatusOpen,
		Priority:    priority,
		AssignedTo:  req.AssignedTo,
		Keywords:    dedupe.ExtractKeywords(req.Title),
		CreatedBy:   creatorFromRequest(r),
	}
	if err := s.store.CreateIssue(r.Context(), issue); err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

type checkIssueRequest struct {
	Title string `json:"title"`
}

type checkIssueResponse struct {
	HasDuplicates bool           `json:"has_duplicates"`
	Candidates    []candidateOut `json:"candidates"`
}

// checkIssue runs the advisory duplicate check without writing anything,
// so clients can warn while the user is still typing.
func (s *Server) checkIssue(w http.ResponseWriter, r *http.Request) {
	var req checkIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	has, candidates := s.detector.Detect(r.Context(), req.Title)
	writeJSON(w, http.StatusOK, checkIssueResponse{
		HasDuplicates: has,
		Candidates:    toCandidateOut(candidates),
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateIssueStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	status := models.IssueStatus(req.Status)
	if !models.ValidStatus(status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status: %s", req.Status))
		return
	}

	id := r.PathValue("id")
	if err := s.store.UpdateIssueStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, storeStatus(err), err.Error())
		return
	}

	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteIssue(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamIssues pushes board snapshots as server-sent events until the
// client disconnects.
func (s *Server) streamIssues(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	filter := store.IssueListFilter{Status: models.IssueStatus(r.URL.Query().Get("status"))}
	sub := s.watcher.Watch(r.Context(), filter)
	defer sub.Close()

	for snap := range sub.Updates() {
		data, err := json.Marshal(snap.Issues)
		if err != nil {
			slog.Warn("encode board snapshot", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// --- Users ---

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if u.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := s.store.CreateUser(r.Context(), &u); err != nil {
		writeError(w, storeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// creatorFromRequest reads the caller's identity header. There is no
// session management here; the header is trusted the way the store's own
// access rules allow.
func creatorFromRequest(r *http.Request) string {
	if email := r.Header.Get("X-User-Email"); email != "" {
		return email
	}
	return models.AnonymousCreator
}

func toCandidateOut(candidates []dedupe.Candidate) []candidateOut {
	out := make([]candidateOut, len(candidates))
	for i, c := range candidates {
		out[i] = candidateOut{Issue: c.Issue, Score: c.Score}
	}
	return out
}
