package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/store"
)

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return NewServer(s, true), s
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListIssues_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var issues []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	assert.Nil(t, issues)
}

func TestCreateIssue_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	body := `{"title":"Login page crashes on submit","description":"every time","priority":"high"}`
	req := httptest.NewRequest("POST", "/api/v1/issues", bytes.NewBufferString(body))
	req.Header.Set("X-User-Email", "ana@example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var issue models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issue))
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, "ana@example.com", issue.CreatedBy)
	assert.Equal(t, []string{"login", "page", "crashes", "submit"}, issue.Keywords)

	// Get it back
	w2 := doJSON(t, router, "GET", "/api/v1/issues/"+issue.ID, "")
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestCreateIssue_MissingTitle(t *testing.T) {
	srv, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "POST", "/api/v1/issues", `{"description":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateIssue_DuplicateConflict(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Login page crashes on submit"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Near-identical title warns instead of creating
	w = doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Login page crashes when submitting"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	var warning duplicateWarning
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &warning))
	require.Len(t, warning.Candidates, 1)
	assert.Greater(t, warning.Candidates[0].Score, 0.4)

	// Force pushes it through
	w = doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Login page crashes when submitting","force":true}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateIssue_ShortTitleSkipsCheck(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Ping"}`)
	// Under the length floor: no check, creation proceeds.
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Ping"}`)
	assert.Equal(t, http.StatusCreated, w.Code, "short titles never conflict")
}

func TestCheckIssue(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	require.Equal(t, http.StatusCreated,
		doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Crash on startup"}`).Code)

	w := doJSON(t, router, "POST", "/api/v1/issues/check", `{"title":"App crash on startup screen"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp checkIssueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.HasDuplicates)
	require.Len(t, resp.Candidates, 1)

	// Unrelated title: clean
	w = doJSON(t, router, "POST", "/api/v1/issues/check", `{"title":"Dark mode toggle broken"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.HasDuplicates)
}

func TestUpdateIssueStatus_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()

	issue := &models.Issue{Title: "Needs triage"}
	require.NoError(t, s.CreateIssue(context.Background(), issue))

	// open -> done rejected
	w := doJSON(t, router, "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"done"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// open -> in_progress -> done
	w = doJSON(t, router, "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"done"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.IssueStatusDone, updated.Status)
}

func TestUpdateIssueStatus_Unknown(t *testing.T) {
	srv, s := setupTestServer(t)
	issue := &models.Issue{Title: "whatever"}
	require.NoError(t, s.CreateIssue(context.Background(), issue))

	w := doJSON(t, srv.Router(), "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"closed"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIssue_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "GET", "/api/v1/issues/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteIssue_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()

	issue := &models.Issue{Title: "to be deleted"}
	require.NoError(t, s.CreateIssue(context.Background(), issue))

	w := doJSON(t, router, "DELETE", "/api/v1/issues/"+issue.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, "DELETE", "/api/v1/issues/"+issue.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUserEndpoints(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/users", `{"Email":"ana@example.com","Name":"Ana"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, "POST", "/api/v1/users", `{"Name":"no email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "GET", "/api/v1/users", "")
	require.Equal(t, http.StatusOK, w.Code)

	var users []*models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Ana", users[0].Name)
}

func TestCheckDisabledServerNeverConflicts(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	srv := NewServer(s, false)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Crash on startup"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "POST", "/api/v1/issues", `{"title":"Crash on startup"}`)
	assert.Equal(t, http.StatusCreated, w.Code, "duplicate check disabled")
}
