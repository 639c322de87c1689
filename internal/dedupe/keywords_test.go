package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"lowercases and splits", "Fix the login bug", []string{"fix", "the", "login", "bug"}},
		{"drops short tokens", "A B ok", nil},
		{"mixed lengths", "UI is broken on iOS", []string{"broken", "ios"}},
		{"runs of whitespace", "crash  \t on   startup", []string{"crash", "startup"}},
		{"no deduplication", "crash crash crash", []string{"crash", "crash", "crash"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.in))
		})
	}
}

func TestExtractKeywordsDeterministic(t *testing.T) {
	in := "Login page crashes on submit"
	first := ExtractKeywords(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ExtractKeywords(in))
	}
}
