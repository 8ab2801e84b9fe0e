package provider

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/daryltucker/agent-bench/internal/model"
)

// sendChatCompletion serves both OpenAI and Sambanova, which speak the same
// chat-completions protocol with Bearer authentication.
func (c *Client) sendChatCompletion(ctx context.Context, cfg model.ProviderConfig, history model.Conversation) (model.AgentReply, error) {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(withTrailingSlash(cfg.BaseURL)),
		option.WithHTTPClient(c.http),
		option.WithMaxRetries(0),
	)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: chatMessages(history),
	}
	if cfg.Temperature > 0 {
		params.Temperature = openai.Float(cfg.Temperature)
	}
	if cfg.TopP > 0 {
		params.TopP = openai.Float(cfg.TopP)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.AgentReply{}, err
	}
	if len(resp.Choices) == 0 {
		return model.AgentReply{}, malformed(cfg.ID, "response has no choices")
	}

	return model.AgentReply{
		Text: resp.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// chatMessages maps roles one to one, except tool output which is sent as a
// system message: the directive protocol has no tool_call_id to reference.
func chatMessages(history model.Conversation) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.SystemMessage(m.Content))
		}
	}
	return out
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
