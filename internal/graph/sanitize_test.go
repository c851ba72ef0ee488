package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDatabaseName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "MyStory", "mystory"},
		{"strips invalid characters", "The Lost Kingdom!", "thelostkingdom"},
		{"keeps dots and dashes", "story-v1.2", "story-v1.2"},
		{"prefixes when starting with dash", "-dark-tales", "db-dark-tales"},
		{"prefixes when starting with dot", ".hidden", "db.hidden"},
		{"pads short names", "ab", "abdb"},
		{"pads empty input", "", "dbdb"},
		{"strips trailing dashes", "story--", "story"},
		{"strips trailing dots", "story..", "story"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeDatabaseName(tt.input))
		})
	}
}

func TestSanitizeDatabaseNameTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "abcdefghij"
	}
	got := SanitizeDatabaseName(long)
	assert.Len(t, got, 63)
}

func TestSanitizeDatabaseNameIdempotent(t *testing.T) {
	inputs := []string{"My Story!", "-x-", "The.Very.Long.Name", "42 tales"}
	for _, in := range inputs {
		once := SanitizeDatabaseName(in)
		assert.Equal(t, once, SanitizeDatabaseName(once), "input %q", in)
	}
}
