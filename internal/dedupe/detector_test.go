package dedupe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeld/trk/internal/models"
)

// fakeRetriever records calls so tests can assert the store was (not) hit.
type fakeRetriever struct {
	issues []*models.Issue
	err    error
	calls  int
}

func (f *fakeRetriever) FindIssuesByKeywords(ctx context.Context, keywords []string) ([]*models.Issue, error) {
	f.calls++
	return f.issues, f.err
}

func TestDetectShortTitleSkipsStore(t *testing.T) {
	r := &fakeRetriever{}
	d := NewDetector(r, 0)

	has, candidates := d.Detect(context.Background(), "Hi")
	assert.False(t, has)
	assert.Empty(t, candidates)
	assert.Zero(t, r.calls, "short titles must not touch the store")
}

func TestDetectShortTitleCountsRunesNotBytes(t *testing.T) {
	r := &fakeRetriever{issues: []*models.Issue{
		{ID: "1", Title: "日本語 crash"},
	}}
	d := NewDetector(r, 0)

	// Two runes but six bytes: still below the length floor.
	has, candidates := d.Detect(context.Background(), "日本")
	assert.False(t, has)
	assert.Empty(t, candidates)
	assert.Zero(t, r.calls, "rune count decides eligibility, not byte length")

	// Five runes clears the floor and reaches the store.
	d.Detect(context.Background(), "日本語のバグ")
	assert.Equal(t, 1, r.calls)
}

func TestDetectNoKeywordsSkipsStore(t *testing.T) {
	r := &fakeRetriever{}
	d := NewDetector(r, 0)

	// Long enough, but every token is under the keyword length floor.
	has, candidates := d.Detect(context.Background(), "a b c d e f")
	assert.False(t, has)
	assert.Empty(t, candidates)
	assert.Zero(t, r.calls)
}

func TestDetectFailsOpenOnRetrievalError(t *testing.T) {
	r := &fakeRetriever{err: errors.New("store unreachable")}
	d := NewDetector(r, 0)

	has, candidates := d.Detect(context.Background(), "Login page crashes on submit")
	assert.False(t, has)
	assert.Empty(t, candidates)
	assert.Equal(t, 1, r.calls)
}

func TestDetectFindsDuplicate(t *testing.T) {
	existing := &models.Issue{
		ID:       "01ABC",
		Title:    "Login page crashes on submit",
		Keywords: []string{"login", "page", "crashes", "submit"},
	}
	r := &fakeRetriever{issues: []*models.Issue{existing}}
	d := NewDetector(r, 0)

	has, candidates := d.Detect(context.Background(), "Login page crashes when submitting")
	assert.True(t, has)
	require.Len(t, candidates, 1)
	assert.Equal(t, existing.ID, candidates[0].Issue.ID)
	assert.Greater(t, candidates[0].Score, DefaultThreshold)
}

func TestDetectFiltersBelowThreshold(t *testing.T) {
	r := &fakeRetriever{issues: []*models.Issue{
		{ID: "1", Title: "Login button misaligned on mobile safari toolbar"},
		{ID: "2", Title: "Login page crashes on submit"},
	}}
	d := NewDetector(r, 0)

	has, candidates := d.Detect(context.Background(), "Login page crashes when submitting")
	assert.True(t, has)
	require.Len(t, candidates, 1)
	assert.Equal(t, "2", candidates[0].Issue.ID)
}

func TestDetectRanksByDescendingScore(t *testing.T) {
	r := &fakeRetriever{issues: []*models.Issue{
		{ID: "weak", Title: "crash on startup screen of the settings app"},
		{ID: "strong", Title: "App crashes on startup"},
	}}
	d := NewDetector(r, 0.1)

	has, candidates := d.Detect(context.Background(), "App crashes on startup screen")
	assert.True(t, has)
	require.Len(t, candidates, 2)
	assert.Equal(t, "strong", candidates[0].Issue.ID)
	assert.GreaterOrEqual(t, candidates[0].Score, candidates[1].Score)
}

func TestDetectSkipsUntitledIssues(t *testing.T) {
	r := &fakeRetriever{issues: []*models.Issue{
		nil,
		{ID: "blank", Title: ""},
		{ID: "ok", Title: "Crash on startup"},
	}}
	d := NewDetector(r, 0)

	has, candidates := d.Detect(context.Background(), "Crash on startup")
	assert.True(t, has)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ok", candidates[0].Issue.ID)
}

func TestDetectEndToEndScenario(t *testing.T) {
	// Store contains one issue; the new title shares keywords with it.
	existing := &models.Issue{
		ID:       "01XYZ",
		Title:    "Crash on startup",
		Keywords: []string{"crash", "startup"},
	}
	r := &fakeRetriever{issues: []*models.Issue{existing}}
	d := NewDetector(r, 0)

	title := "App crash on startup screen"
	keywords := ExtractKeywords(title)
	assert.Contains(t, keywords, "startup")
	assert.Contains(t, keywords, "crash")

	has, candidates := d.Detect(context.Background(), title)
	// {app, crash, on, startup, screen} vs {crash, on, startup}:
	// intersection 3, union 5.
	assert.True(t, has, "expected a duplicate at threshold %v", DefaultThreshold)
	require.Len(t, candidates, 1)
	assert.InDelta(t, 3.0/5.0, candidates[0].Score, 1e-9)
}
