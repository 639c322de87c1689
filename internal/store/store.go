package store

import (
	"context"
	"errors"

	"github.com/mfeld/trk/internal/models"
)

// Classified failure categories. Callers distinguish these with errors.Is
// so the UI can show a specific message per category.
var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnavailable       = errors.New("store unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	Status     models.IssueStatus
	Priority   models.IssuePriority
	AssignedTo string
	CreatedBy  string
}

// Store defines the persistence interface for trk.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	// UpdateIssueStatus enforces the transition policy: open -> done
	// directly is rejected with ErrInvalidTransition.
	UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus) error
	DeleteIssue(ctx context.Context, id string) error

	// FindIssuesByKeywords returns every issue whose persisted keywords
	// intersect the given set in at least one token. An empty keyword
	// slice short-circuits to an empty result without querying.
	FindIssuesByKeywords(ctx context.Context, keywords []string) ([]*models.Issue, error)

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
