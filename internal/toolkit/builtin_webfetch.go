package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/turnforge/agentcore/internal/protocol"
)

// WebFetchTool implements the built-in "web_fetch" tool: fetches a URL and
// converts HTML to text or markdown, grounded on voocel-mas's FetchTool.
type WebFetchTool struct {
	BaseTool
	client      *http.Client
	maxBodySize int64
}

func NewWebFetchTool(maxBodySize int64) *WebFetchTool {
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	return &WebFetchTool{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxBodySize: maxBodySize,
	}
}

type webFetchArgs struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout,omitempty"`
}

func (t *WebFetchTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "web_fetch",
		Description: "Fetch a URL and return its content as text, markdown, or raw HTML body.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url":     map[string]interface{}{"type": "string", "description": "URL to fetch, must start with http:// or https://"},
				"format":  map[string]interface{}{"type": "string", "enum": []string{"text", "markdown", "html"}},
				"timeout": map[string]interface{}{"type": "integer", "description": "Timeout in seconds (max 120, default 30)"},
			},
			"required":             []string{"url", "format"},
			"additionalProperties": false,
		},
	}
}

func (t *WebFetchTool) ConcurrencySafety() ConcurrencySafety { return ReadOnly }
func (t *WebFetchTool) DefaultApproval() ApprovalDefault     { return ApprovalUnlessTrusted }

func (t *WebFetchTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a webFetchArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.URL == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "url is required")), nil
	}
	if !strings.HasPrefix(a.URL, "http://") && !strings.HasPrefix(a.URL, "https://") {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "url must start with http:// or https://")), nil
	}
	format := strings.ToLower(a.Format)
	if format != "text" && format != "markdown" && format != "html" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "format must be one of: text, markdown, html")), nil
	}

	reqCtx := ctx
	if a.Timeout > 0 {
		timeout := a.Timeout
		if timeout > 120 {
			timeout = 120
		}
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.URL, nil)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to create request: %v", err)), nil
	}
	httpReq.Header.Set("User-Agent", "agentcore-fetch/1.0")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to fetch url: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "request failed with status %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize))
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to read response body: %v", err)), nil
	}
	content := string(body)
	if !utf8.ValidString(content) {
		return ErrorResult(call, NewToolError(ErrUnsupportedFormat, "response content is not valid UTF-8")), nil
	}

	contentType := resp.Header.Get("Content-Type")
	isHTML := strings.Contains(contentType, "text/html")

	switch format {
	case "text":
		if isHTML {
			text, err := extractTextFromHTML(content)
			if err != nil {
				return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to extract text: %v", err)), nil
			}
			content = text
		}
	case "markdown":
		if isHTML {
			markdown, err := convertHTMLToMarkdown(content)
			if err != nil {
				return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to convert to markdown: %v", err)), nil
			}
			content = markdown
		}
	case "html":
		if isHTML {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
			if err != nil {
				return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to parse html: %v", err)), nil
			}
			bodyHTML, err := doc.Find("body").Html()
			if err != nil || bodyHTML == "" {
				return ErrorResult(call, NewToolError(ErrExecutionFailed, "no body content found in html")), nil
			}
			content = "<html>\n<body>\n" + bodyHTML + "\n</body>\n</html>"
		}
	}

	truncated := false
	if int64(len(content)) > t.maxBodySize {
		content = content[:t.maxBodySize]
		content += fmt.Sprintf("\n\n[Content truncated to %d bytes]", t.maxBodySize)
		truncated = true
	}

	text := content
	if truncated {
		text += "\n[truncated]"
	}
	return TextResult(call, text), nil
}

func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	text := doc.Find("body").Text()
	return strings.Join(strings.Fields(text), " "), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	return converter.ConvertString(html)
}
