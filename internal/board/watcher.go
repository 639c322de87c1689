// Package board provides a live view of the issue list: a poll-based
// subscription that delivers ordered snapshots as the store changes.
package board

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/store"
)

// DefaultInterval is how often the watcher re-reads the store.
const DefaultInterval = 2 * time.Second

// Lister is the read slice of the store the watcher needs.
type Lister interface {
	ListIssues(ctx context.Context, filter store.IssueListFilter) ([]*models.Issue, error)
}

// Snapshot is one consistent, ordered view of the board.
type Snapshot struct {
	Issues []*models.Issue
	At     time.Time
}

// Watcher polls the store and pushes a snapshot whenever the visible
// issue list changes.
type Watcher struct {
	lister   Lister
	interval time.Duration
}

// NewWatcher creates a Watcher. A non-positive interval selects
// DefaultInterval.
func NewWatcher(l Lister, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{lister: l, interval: interval}
}

// Subscription is a handle on a running watch. Consumers must Close it
// when done; an unclosed subscription keeps its poll goroutine alive for
// the life of the parent context.
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	once    sync.Once
}

// Updates returns the snapshot channel. It is closed after Close, or when
// the watch context ends.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Close stops delivery. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Watch starts polling with the given filter. The first snapshot is
// delivered immediately; subsequent ones only when the list actually
// changed. List errors are logged and polling continues: a flaky store
// should not kill a board view.
func (w *Watcher) Watch(ctx context.Context, filter store.IssueListFilter) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
	}

	go w.run(ctx, filter, sub.updates)
	return sub
}

func (w *Watcher) run(ctx context.Context, filter store.IssueListFilter, updates chan<- Snapshot) {
	defer close(updates)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var lastSeen string
	sent := false
	for {
		issues, err := w.lister.ListIssues(ctx, filter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("board poll failed", "error", err)
		} else if fp := fingerprint(issues); !sent || fp != lastSeen {
			lastSeen = fp
			sent = true
			select {
			case updates <- Snapshot{Issues: issues, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// fingerprint summarizes an issue list well enough to detect change:
// identity, order, status, and last update time.
func fingerprint(issues []*models.Issue) string {
	var b strings.Builder
	for _, issue := range issues {
		b.WriteString(issue.ID)
		b.WriteByte('|')
		b.WriteString(string(issue.Status))
		b.WriteByte('|')
		b.WriteString(issue.UpdatedAt.Format(time.RFC3339Nano))
		b.WriteByte('\n')
	}
	return b.String()
}
