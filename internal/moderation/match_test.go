package moderation_test

import (
	"testing"

	"github.com/robalyx/warden/internal/moderation"
	"github.com/stretchr/testify/assert"
)

func TestMatchForbidden(t *testing.T) {
	t.Parallel()

	words := []string{"spam", "toxic", "inappropriate"}

	tests := []struct {
		name    string
		content string
		words   []string
		want    string
	}{
		{name: "no match", content: "hello there", words: words, want: ""},
		{name: "exact", content: "spam", words: words, want: "spam"},
		{name: "case insensitive", content: "Stop SPAMMING", words: words, want: "spam"},
		{name: "substring", content: "that was intoxicating", words: words, want: "toxic"},
		{name: "first configured word wins", content: "toxic spam", words: words, want: "spam"},
		{name: "unicode folding", content: "STRASSE", words: []string{"straße"}, want: "straße"},
		{name: "blank words ignored", content: "anything", words: []string{"", "  "}, want: ""},
		{name: "empty policy", content: "spam", words: nil, want: ""},
		{name: "empty content", content: "", words: words, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, moderation.MatchForbidden(tt.content, tt.words))
		})
	}
}
