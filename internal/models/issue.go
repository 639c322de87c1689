package models

import "time"

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusDone       IssueStatus = "done"
)

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// AnonymousCreator is recorded when no authenticated user is available
// at submission time.
const AnonymousCreator = "anonymous"

// Issue represents a tracked issue on the board.
//
// Keywords are derived from Title once, at creation time, and persisted so
// duplicate checks never have to re-tokenize the whole corpus. They are not
// recomputed if the title is later edited.
type Issue struct {
	ID          string
	Title       string
	Description string
	Status      IssueStatus
	Priority    IssuePriority
	AssignedTo  string // assignee email; empty = unassigned
	CreatedBy   string // creator email, or AnonymousCreator
	Keywords    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidStatus reports whether s is a known issue status.
func ValidStatus(s IssueStatus) bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusDone:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known issue priority.
func ValidPriority(p IssuePriority) bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// CanTransition reports whether an issue may move from one status to
// another. The only disallowed move is open -> done directly: work must
// pass through in_progress first. Everything else, including moving
// backwards, is permitted.
func CanTransition(from, to IssueStatus) bool {
	if from == IssueStatusOpen && to == IssueStatusDone {
		return false
	}
	return true
}
