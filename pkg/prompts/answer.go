package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
)

// SearchResult is one web search hit offered to the model as context.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// BuildAnswerMessages creates the chat messages for answering query from
// search results: a system message with the numbered results, then the query.
func BuildAnswerMessages(query string, results []SearchResult) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: buildAnswerSystemPrompt(results)},
		{Role: llm.RoleUser, Content: strings.TrimSpace(query)},
	}
}

func buildAnswerSystemPrompt(results []SearchResult) string {
	var sb strings.Builder

	sb.WriteString("You are a research assistant. Answer the user's question accurately and concisely.\n")
	sb.WriteString("Base your answer on the search results below and cite them inline as [n].\n")
	sb.WriteString("If the results do not cover the question, say so and answer from general knowledge.\n")
	sb.WriteString("Use Markdown for formatting.\n\n")

	sb.WriteString("## Search Results\n\n")
	sb.WriteString(FormatSearchResults(results))

	return sb.String()
}

// FormatSearchResults renders results as a numbered list. Empty fields are
// omitted; an empty list renders a placeholder line.
func FormatSearchResults(results []SearchResult) string {
	var sb strings.Builder
	n := 0
	for _, r := range results {
		title := strings.TrimSpace(r.Title)
		url := strings.TrimSpace(r.URL)
		snippet := strings.TrimSpace(r.Snippet)
		if title == "" && url == "" && snippet == "" {
			continue
		}
		n++

		if title == "" {
			title = "Untitled"
		}
		sb.WriteString(fmt.Sprintf("[%d] %s\n", n, title))
		if url != "" {
			sb.WriteString(fmt.Sprintf("URL: %s\n", url))
		}
		if snippet != "" {
			sb.WriteString(snippet)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if n == 0 {
		return "No search results available.\n"
	}
	return sb.String()
}
