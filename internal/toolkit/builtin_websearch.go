package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/turnforge/agentcore/internal/protocol"
)

// WebSearchResult is one organic search hit.
type WebSearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// WebSearchProvider performs a web search. No single library in the corpus
// wraps a search API directly (the pack's "search" entries are MCP server
// configs — brave-search, exa, tavily — meant to run as separate
// processes, not Go clients); BraveWebSearchProvider is the default,
// calling Brave's HTTP API directly since it's the one named concretely.
type WebSearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error)
}

// BraveWebSearchProvider calls the Brave Search API's web endpoint.
type BraveWebSearchProvider struct {
	APIKey string
	client *http.Client
}

func NewBraveWebSearchProvider(apiKey string) *BraveWebSearchProvider {
	return &BraveWebSearchProvider{APIKey: apiKey, client: &http.Client{Timeout: 15 * time.Second}}
}

func (p *BraveWebSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("no Brave Search API key configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.search.brave.com/res/v1/web/search", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(maxResults))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode brave search response: %w", err)
	}

	results := make([]WebSearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, WebSearchResult{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return results, nil
}

// WebSearchTool implements the built-in "web_search" tool.
type WebSearchTool struct {
	BaseTool
	provider WebSearchProvider
}

func NewWebSearchTool(provider WebSearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *WebSearchTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "web_search",
		Description: "Search the web and return titles, URLs, and snippets for the top results.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]interface{}{"type": "string"},
				"max_results": map[string]interface{}{"type": "integer", "default": 10, "minimum": 1, "maximum": 20},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *WebSearchTool) ConcurrencySafety() ConcurrencySafety { return ReadOnly }
func (t *WebSearchTool) DefaultApproval() ApprovalDefault     { return ApprovalUnlessTrusted }

func (t *WebSearchTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a webSearchArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Query == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "query is required")), nil
	}
	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 20 {
		maxResults = 20
	}
	if t.provider == nil {
		return ErrorResult(call, NewToolError(ErrExecutionFailed, "no web search provider configured")), nil
	}

	results, err := t.provider.Search(ctx, a.Query, maxResults)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return TextResult(call, "No results found."), nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Description)
	}
	return TextResult(call, strings.TrimRight(sb.String(), "\n")), nil
}
