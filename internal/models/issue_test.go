package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from IssueStatus
		to   IssueStatus
		want bool
	}{
		{"open to done is blocked", IssueStatusOpen, IssueStatusDone, false},
		{"open to in_progress", IssueStatusOpen, IssueStatusInProgress, true},
		{"in_progress to done", IssueStatusInProgress, IssueStatusDone, true},
		{"done to open (reopen)", IssueStatusDone, IssueStatusOpen, true},
		{"in_progress to open", IssueStatusInProgress, IssueStatusOpen, true},
		{"done to in_progress", IssueStatusDone, IssueStatusInProgress, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(IssueStatusOpen))
	assert.True(t, ValidStatus(IssueStatusInProgress))
	assert.True(t, ValidStatus(IssueStatusDone))
	assert.False(t, ValidStatus("closed"))
	assert.False(t, ValidStatus(""))
}

func TestUserDisplayName(t *testing.T) {
	u := &User{Email: "ana@example.com"}
	assert.Equal(t, "ana@example.com", u.DisplayName())

	u.Name = "Ana"
	assert.Equal(t, "Ana", u.DisplayName())
}
