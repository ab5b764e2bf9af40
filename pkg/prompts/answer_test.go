package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
)

func TestBuildAnswerMessages(t *testing.T) {
	results := []SearchResult{
		{Title: "Paris - Wikipedia", URL: "https://en.wikipedia.org/wiki/Paris", Snippet: "Paris is the capital of France."},
		{Title: "France facts", URL: "https://example.com/france", Snippet: "Population and geography."},
	}

	messages := BuildAnswerMessages("  What is the capital of France?  ", results)

	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
	assert.Equal(t, "What is the capital of France?", messages[1].Content)

	system := messages[0].Content
	assert.Contains(t, system, "[1] Paris - Wikipedia\nURL: https://en.wikipedia.org/wiki/Paris\nParis is the capital of France.")
	assert.Contains(t, system, "[2] France facts")
	assert.Less(t, strings.Index(system, "[1]"), strings.Index(system, "[2]"), "results keep their order")
}

func TestBuildAnswerMessages_NoResults(t *testing.T) {
	messages := BuildAnswerMessages("hello", nil)

	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "No search results available.")
}

func TestFormatSearchResults_SkipsEmptyAndNumbersSequentially(t *testing.T) {
	out := FormatSearchResults([]SearchResult{
		{},
		{URL: "https://example.com/a"},
		{Title: "B", Snippet: "  b snippet  "},
	})

	assert.Equal(t, "[1] Untitled\nURL: https://example.com/a\n\n[2] B\nb snippet\n\n", out)
}
