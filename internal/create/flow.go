// Package create implements the issue-creation protocol: duplicate check,
// duplicate warning with confirm-or-edit, and the optimistic write against
// the store.
package create

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mfeld/trk/internal/dedupe"
	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/store"
)

// State identifies where a single creation attempt is in its lifecycle.
type State string

const (
	StateEditing    State = "editing"
	StateChecking   State = "checking"
	StateWarning    State = "warning"
	StateSubmitting State = "submitting"
	StateCreated    State = "created"
	StateFailed     State = "failed"
)

// DefaultTimeout bounds the Checking/Submitting states. When it expires the
// attempt is reported as failed even if the underlying store operation
// completes later; the write is not cancelled. Known, accepted
// inconsistency: the user may see a failure for an issue that eventually
// lands in the store.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is the synthetic failure raised when the safety timer expires.
var ErrTimeout = errors.New("request timed out")

// Draft holds the fields of the issue being composed.
type Draft struct {
	Title       string
	Description string
	Priority    models.IssuePriority
	AssignedTo  string
}

// Writer is the slice of the store the flow writes through.
type Writer interface {
	CreateIssue(ctx context.Context, issue *models.Issue) error
}

// Checker runs the duplicate detection pass.
type Checker interface {
	Detect(ctx context.Context, title string) (bool, []dedupe.Candidate)
}

// Identity supplies the authenticated user's email at submission time, or
// "" when nobody is signed in.
type Identity interface {
	CurrentEmail() string
}

// Notifier is the fire-and-forget channel for user-visible messages. The
// flow calls it but never depends on delivery.
type Notifier interface {
	Success(format string, a ...any)
	Error(format string, a ...any)
}

// Options tunes a Flow.
type Options struct {
	// CheckEnabled gates the duplicate check. When false every submit
	// goes straight to the write, matching the check-disabled wiring.
	CheckEnabled bool
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Flow is the explicit state object for one issue-creation attempt. It
// replaces ambient mutable form state: every transition goes through
// Submit, Back, or Reset. Not safe for concurrent use; one attempt is one
// logical flow.
type Flow struct {
	writer   Writer
	checker  Checker
	identity Identity
	notify   Notifier
	opts     Options

	state      State
	draft      Draft
	candidates []dedupe.Candidate
	err        error
	writeDone  chan struct{}
}

// NewFlow creates a Flow in the Editing state.
func NewFlow(w Writer, c Checker, id Identity, n Notifier, opts Options) *Flow {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Flow{
		writer:   w,
		checker:  c,
		identity: id,
		notify:   n,
		opts:     opts,
		state:    StateEditing,
	}
}

// State returns the current protocol state.
func (f *Flow) State() State { return f.state }

// Candidates returns the duplicates found by the last check, ranked by
// descending similarity. Only meaningful in the Warning state.
func (f *Flow) Candidates() []dedupe.Candidate { return f.candidates }

// Err returns the failure that moved the flow to Failed, if any.
func (f *Flow) Err() error { return f.err }

// SetDraft replaces the draft. Ignored outside the Editing state.
func (f *Flow) SetDraft(d Draft) {
	if f.state != StateEditing {
		return
	}
	f.draft = d
}

// Draft returns the current draft.
func (f *Flow) Draft() Draft { return f.draft }

// Submit advances the flow toward a created issue and returns the
// resulting state.
//
// From Editing it runs the duplicate check (unless force is set or the
// check is disabled) and either stops in Warning with candidates attached
// or proceeds to the write. From Warning it always proceeds to the write
// without re-checking: the user has seen the candidates and chosen to
// create anyway.
//
// The write itself is optimistic: it is dispatched in the background and
// the flow reports Created without waiting for store acknowledgment. A
// background write failure is logged and notified, never retried, and
// never rolls the Created state back.
func (f *Flow) Submit(ctx context.Context) State {
	switch f.state {
	case StateEditing:
		if f.opts.CheckEnabled {
			if done := f.runCheck(ctx); done {
				return f.state
			}
		}
	case StateWarning:
		// force path: skip re-checking
	default:
		return f.state
	}

	f.state = StateSubmitting
	f.submit()
	return f.state
}

// Back returns from the Warning state to Editing, discarding the check
// result so the user can rework the draft.
func (f *Flow) Back() State {
	if f.state == StateWarning {
		f.candidates = nil
		f.state = StateEditing
	}
	return f.state
}

// Reset returns the flow to a fresh Editing state for the next attempt.
func (f *Flow) Reset() {
	f.state = StateEditing
	f.draft = Draft{}
	f.candidates = nil
	f.err = nil
}

// runCheck runs the detector under the safety timeout. It reports true
// when the flow reached a state that stops this submission (Warning or
// Failed); false means proceed to the write.
func (f *Flow) runCheck(ctx context.Context) bool {
	f.state = StateChecking

	checkCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	type checkResult struct {
		has        bool
		candidates []dedupe.Candidate
	}
	results := make(chan checkResult, 1)
	go func() {
		has, candidates := f.checker.Detect(checkCtx, f.draft.Title)
		results <- checkResult{has, candidates}
	}()

	select {
	case r := <-results:
		if r.has {
			f.candidates = r.candidates
			f.state = StateWarning
			return true
		}
		return false
	case <-checkCtx.Done():
		// The check itself fails open, so only a hung store gets here.
		f.err = ErrTimeout
		f.state = StateFailed
		f.notify.Error("Request timed out. Please check your connection.")
		return true
	}
}

// submit dispatches the store write without awaiting it and reports
// success immediately.
func (f *Flow) submit() {
	issue := &models.Issue{
		Title:       f.draft.Title,
		Description: f.draft.Description,
		Status:      models.IssueStatusOpen,
		Priority:    f.draft.Priority,
		AssignedTo:  f.draft.AssignedTo,
		Keywords:    dedupe.ExtractKeywords(f.draft.Title),
		CreatedBy:   f.creator(),
	}

	timeout := f.opts.Timeout
	notify := f.notify
	done := make(chan struct{})
	f.writeDone = done
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := f.writer.CreateIssue(ctx, issue); err != nil {
			slog.Error("background issue write failed", "title", issue.Title, "error", err)
			switch {
			case errors.Is(err, store.ErrPermissionDenied):
				notify.Error("You do not have permission to create issues.")
			case errors.Is(err, store.ErrUnavailable):
				notify.Error("Store unavailable. Check your connection.")
			default:
				notify.Error("Failed to create issue: %v", err)
			}
		}
	}()

	f.state = StateCreated
	f.notify.Success("Issue created: %s", f.draft.Title)
}

// Wait blocks until the background write settles. It is not part of the
// visible flow, which has already reported its outcome; callers that are
// about to exit the process use it so the write is not lost. Returns
// immediately if nothing was submitted.
func (f *Flow) Wait() {
	if f.writeDone != nil {
		<-f.writeDone
	}
}

func (f *Flow) creator() string {
	if email := f.identity.CurrentEmail(); email != "" {
		return email
	}
	return models.AnonymousCreator
}
