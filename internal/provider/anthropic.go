package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/daryltucker/agent-bench/internal/model"
)

const defaultAnthropicMaxTokens = 1024

func (c *Client) sendAnthropic(ctx context.Context, cfg model.ProviderConfig, history model.Conversation) (model.AgentReply, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(withTrailingSlash(cfg.BaseURL)),
		option.WithHTTPClient(c.http),
		option.WithMaxRetries(0),
	)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	system, messages := anthropicMessages(history)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(cfg.Temperature)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.AgentReply{}, err
	}

	var sb strings.Builder
	found := false
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
			found = true
		}
	}
	if !found {
		return model.AgentReply{}, malformed(cfg.ID, "response has no text content (stop reason %q)", resp.StopReason)
	}

	return model.AgentReply{
		Text: sb.String(),
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// anthropicMessages lifts system messages into the system prompt and sends
// tool output as user text. Adjacent same-role entries share one message.
func anthropicMessages(history model.Conversation) (string, []anthropic.MessageParam) {
	var (
		system []string
		out    []anthropic.MessageParam
	)
	for _, m := range history {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == model.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		block := anthropic.NewTextBlock(m.Content)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{block},
		})
	}
	return strings.Join(system, "\n\n"), out
}
