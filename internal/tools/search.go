package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/daryltucker/agent-bench/internal/model"
)

// maxSearchBody bounds how much of the search response is read.
const maxSearchBody = 1 << 20

func (e *Executor) search(ctx context.Context, query string) model.ToolResult {
	if query == "" {
		return model.ToolResult{Error: "empty search query"}
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()

	u, err := url.Parse(e.cfg.SearchURL)
	if err != nil {
		return model.ToolResult{Error: fmt.Sprintf("invalid search URL: %v", err)}
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(searchCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.ToolResult{Error: fmt.Sprintf("failed to build search request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return model.ToolResult{Error: fmt.Sprintf("search request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return model.ToolResult{Error: fmt.Sprintf("failed to read search response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := truncate(string(body), 256)
		return model.ToolResult{Error: fmt.Sprintf("search API returned %s: %s", resp.Status, snippet)}
	}

	if !gjson.ValidBytes(body) {
		return model.ToolResult{Error: "search API returned invalid JSON"}
	}

	snippets := extractSnippets(gjson.ParseBytes(body), e.cfg.MaxSnippets)
	if len(snippets) == 0 {
		return model.ToolResult{Error: "search returned no results"}
	}

	text, truncated := truncate(strings.Join(snippets, "\n"), e.cfg.OutputLimit)
	return model.ToolResult{Output: text, Success: true, Truncated: truncated}
}

// extractSnippets collects the instant answer fields, then related topics
// (flattening grouped topics), up to limit related entries.
func extractSnippets(doc gjson.Result, limit int) []string {
	var out []string
	for _, field := range []string{"Answer", "AbstractText", "Definition"} {
		if s := strings.TrimSpace(doc.Get(field).String()); s != "" {
			out = append(out, s)
		}
	}

	related := 0
	var walk func(topics gjson.Result)
	walk = func(topics gjson.Result) {
		topics.ForEach(func(_, topic gjson.Result) bool {
			if related >= limit {
				return false
			}
			if nested := topic.Get("Topics"); nested.IsArray() {
				walk(nested)
				return related < limit
			}
			if s := strings.TrimSpace(topic.Get("Text").String()); s != "" {
				out = append(out, "- "+s)
				related++
			}
			return true
		})
	}
	walk(doc.Get("RelatedTopics"))

	return out
}
