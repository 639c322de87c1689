package dedupe

import (
	"context"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/mfeld/trk/internal/models"
)

// MinTitleLength is the shortest title eligible for a duplicate check.
// Shorter titles skip the check silently rather than erroring: there is
// not enough signal in four characters to match against.
const MinTitleLength = 5

// Retriever fetches existing issues whose persisted keywords intersect the
// given set in at least one token. It is a recall-biased pre-filter; the
// detector narrows the result by title similarity afterwards.
type Retriever interface {
	FindIssuesByKeywords(ctx context.Context, keywords []string) ([]*models.Issue, error)
}

// Candidate pairs an existing issue with its similarity to the pending
// title. Transient: it exists only for the duration of one check.
type Candidate struct {
	Issue *models.Issue
	Score float64
}

// Detector finds likely duplicates of a pending issue title among the
// issues already in the store. It never writes.
type Detector struct {
	retriever Retriever
	threshold float64
}

// NewDetector creates a Detector reading candidates through r. A zero
// threshold selects DefaultThreshold.
func NewDetector(r Retriever, threshold float64) *Detector {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Detector{retriever: r, threshold: threshold}
}

// Detect checks title against existing issues and returns whether likely
// duplicates exist, plus the matching candidates sorted by descending
// similarity.
//
// The check is advisory and fails open: titles too short to check, titles
// that yield no keywords, and retrieval errors all report "no duplicates"
// so that issue creation is never blocked by the check itself.
func (d *Detector) Detect(ctx context.Context, title string) (bool, []Candidate) {
	if utf8.RuneCountInString(title) < MinTitleLength {
		return false, nil
	}

	keywords := ExtractKeywords(title)
	if len(keywords) == 0 {
		return false, nil
	}

	issues, err := d.retriever.FindIssuesByKeywords(ctx, keywords)
	if err != nil {
		slog.Warn("duplicate check degraded to no-match", "error", err)
		return false, nil
	}

	var candidates []Candidate
	for _, issue := range issues {
		if issue == nil || issue.Title == "" {
			continue
		}
		if score := Similarity(title, issue.Title); score > d.threshold {
			candidates = append(candidates, Candidate{Issue: issue, Score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return len(candidates) > 0, candidates
}
