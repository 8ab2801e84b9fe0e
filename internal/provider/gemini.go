package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/daryltucker/agent-bench/internal/model"
)

const maxGeminiBody = 8 << 20

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

func (c *Client) sendGemini(ctx context.Context, cfg model.ProviderConfig, history model.Conversation) (model.AgentReply, error) {
	body, err := json.Marshal(geminiRequest{
		Contents:         geminiContents(history),
		GenerationConfig: geminiGeneration(cfg),
	})
	if err != nil {
		return model.AgentReply{}, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.Model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.AgentReply{}, malformed(cfg.ID, "invalid endpoint %q: %v", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return model.AgentReply{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGeminiBody))
	if err != nil {
		return model.AgentReply{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = string(data)
		}
		return model.AgentReply{}, httpStatus(cfg.ID, resp.StatusCode, msg)
	}

	return decodeGemini(cfg.ID, data)
}

func decodeGemini(id model.ProviderID, data []byte) (model.AgentReply, error) {
	if !gjson.ValidBytes(data) {
		return model.AgentReply{}, malformed(id, "response is not valid JSON")
	}
	doc := gjson.ParseBytes(data)

	candidate := doc.Get("candidates.0")
	if !candidate.Exists() {
		if reason := doc.Get("promptFeedback.blockReason").String(); reason != "" {
			return model.AgentReply{}, malformed(id, "prompt blocked: %s", reason)
		}
		return model.AgentReply{}, malformed(id, "response has no candidates")
	}

	texts := candidate.Get("content.parts.#.text").Array()
	if len(texts) == 0 {
		return model.AgentReply{}, malformed(id, "candidate has no text parts (finishReason %q)",
			candidate.Get("finishReason").String())
	}

	var sb strings.Builder
	for _, t := range texts {
		sb.WriteString(t.String())
	}

	return model.AgentReply{
		Text: sb.String(),
		Usage: model.Usage{
			InputTokens:  int(doc.Get("usageMetadata.promptTokenCount").Int()),
			OutputTokens: int(doc.Get("usageMetadata.candidatesTokenCount").Int()),
		},
	}, nil
}

// geminiContents maps the conversation onto Gemini's two roles. A leading
// system prompt becomes a user turn acknowledged by the model, and adjacent
// entries with the same role are merged into one content with several parts.
func geminiContents(history model.Conversation) []geminiContent {
	var out []geminiContent
	add := func(role, text string) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, geminiPart{Text: text})
			return
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}

	for i, m := range history {
		switch {
		case i == 0 && m.Role == model.RoleSystem:
			add("user", m.Content)
			add("model", "Understood.")
		case m.Role == model.RoleAssistant:
			add("model", m.Content)
		default:
			add("user", m.Content)
		}
	}
	return out
}

func geminiGeneration(cfg model.ProviderConfig) *geminiGenerationConfig {
	if cfg.Temperature <= 0 && cfg.TopP <= 0 && cfg.MaxTokens <= 0 {
		return nil
	}
	g := &geminiGenerationConfig{MaxOutputTokens: cfg.MaxTokens}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		g.Temperature = &t
	}
	if cfg.TopP > 0 {
		p := cfg.TopP
		g.TopP = &p
	}
	return g
}
