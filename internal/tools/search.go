package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// SearchResult is one entry of the fixed-shape search payload.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchBackend produces results for a query.
type SearchBackend interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

type SearchTool struct {
	backend    SearchBackend
	maxResults int
}

func NewSearchTool(backend SearchBackend, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &SearchTool{backend: backend, maxResults: maxResults}
}

func (s *SearchTool) Name() string {
	return string(Search)
}

func (s *SearchTool) Description() string {
	return "Search the web for information"
}

func (s *SearchTool) Parameters() map[string]any {
	return objectSchema("query", map[string]any{
		"query": stringParam("The search query"),
	})
}

func (s *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	results, err := s.backend.Search(ctx, args.Query, s.maxResults)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}

	out, err := json.Marshal(struct {
		Query   string         `json:"query"`
		Results []SearchResult `json:"results"`
	}{Query: args.Query, Results: results})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DefaultCatalog backs the offline search backend.
var DefaultCatalog = []SearchResult{
	{Title: "Understanding Async/Await in JavaScript", URL: "https://example.com/async-await-js", Snippet: "A comprehensive guide to asynchronous programming in JavaScript using async/await."},
	{Title: "Top 10 JavaScript Frameworks in 2024", URL: "https://example.com/js-frameworks-2024", Snippet: "An overview of the most popular JavaScript frameworks and libraries this year."},
	{Title: "CSS Grid vs. Flexbox: Which to Choose?", URL: "https://example.com/css-grid-flexbox", Snippet: "Comparing CSS Grid and Flexbox for layout design, with examples and use cases."},
	{Title: "Getting Started with TypeScript", URL: "https://example.com/typescript-guide", Snippet: "A beginner-friendly introduction to TypeScript, its features, and how to use it in your projects."},
	{Title: "The Importance of Web Accessibility (a11y)", URL: "https://example.com/web-accessibility", Snippet: "Learn why web accessibility is crucial and how to build more inclusive web applications."},
}

// StaticBackend ranks a fixed catalog by how many query terms each entry
// mentions. It always returns at least one entry.
type StaticBackend struct {
	Catalog []SearchResult
}

func NewStaticBackend() *StaticBackend {
	return &StaticBackend{Catalog: DefaultCatalog}
}

func (b *StaticBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(b.Catalog) == 0 {
		return nil, nil
	}

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		result SearchResult
		score  int
	}
	ranked := make([]scored, 0, len(b.Catalog))
	for _, r := range b.Catalog {
		text := strings.ToLower(r.Title + " " + r.Snippet)
		score := 0
		for _, term := range terms {
			if len(term) > 2 && strings.Contains(text, term) {
				score++
			}
		}
		ranked = append(ranked, scored{result: r, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var out []SearchResult
	for _, s := range ranked {
		if len(out) == limit || (s.score == 0 && len(out) > 0) {
			break
		}
		out = append(out, s.result)
	}
	return out, nil
}

// DuckDuckGoBackend queries DuckDuckGo through langchaingo and reshapes its
// text output into results.
type DuckDuckGoBackend struct {
	client *duckduckgo.Tool
}

func NewDuckDuckGoBackend(maxResults int) (*DuckDuckGoBackend, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGoBackend{client: ddg}, nil
}

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	res, err := b.client.Call(ctx, query)
	if err != nil {
		return nil, err
	}
	results := parseSearchText(res)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// parseSearchText splits "Title:/Description:/URL:" blocks. Text that does
// not follow that layout becomes a single snippet.
func parseSearchText(text string) []SearchResult {
	var (
		out     []SearchResult
		current SearchResult
	)
	flush := func() {
		if current != (SearchResult{}) {
			out = append(out, current)
		}
		current = SearchResult{}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "Title:"):
			if current.Title != "" {
				flush()
			}
			current.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Description:"):
			current.Snippet = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			current.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
		}
	}
	flush()

	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = append(out, SearchResult{Snippet: strings.TrimSpace(text)})
	}
	return out
}
