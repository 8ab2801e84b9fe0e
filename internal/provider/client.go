/*
PURPOSE:
  Provider Adapter: maps a provider config plus conversation history onto
  one provider HTTP call and maps the reply back onto model.AgentReply.

REQUIREMENTS:
  User-specified:
  - Same conversation, different providers, comparable replies.
  - Missing API key fails before any network attempt.
  - No retries here, the conversation loop decides.

  Implementation-discovered:
  - OpenAI and Sambanova share the chat-completions wire format.
  - Gemini uses contents/parts and rejects adjacent same-role entries.
  - SDK clients retry by default; retries are switched off.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Uses: internal/model

ERROR HANDLING:
  - Every failure is a *provider.Error with a Kind.

IMPLEMENTATION RULES:
  - Never mutate the history slice.
  - Never log the API key.

USAGE:
  c := provider.NewClient(nil)
  reply, err := c.Send(ctx, cfg, conv)

RELATED FILES:
  - internal/provider/openai.go
  - internal/provider/gemini.go
  - internal/provider/anthropic.go
*/

package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/daryltucker/agent-bench/internal/model"
)

// DefaultTimeout is the per-request HTTP timeout used by NewClient(nil).
const DefaultTimeout = 90 * time.Second

// Default endpoints and models, one per provider.
var Defaults = map[model.ProviderID]model.ProviderConfig{
	model.ProviderOpenAI: {
		ID:      model.ProviderOpenAI,
		BaseURL: "https://api.openai.com/v1/",
		Model:   "gpt-4-turbo",
	},
	model.ProviderSambanova: {
		ID:      model.ProviderSambanova,
		BaseURL: "https://api.sambanova.ai/v1/",
		Model:   "Meta-Llama-3.2-1B-Instruct",
	},
	model.ProviderGemini: {
		ID:      model.ProviderGemini,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.0-flash",
	},
	model.ProviderAnthropic: {
		ID:        model.ProviderAnthropic,
		BaseURL:   "https://api.anthropic.com/",
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: 1024,
	},
}

// Client sends conversations to providers.
type Client struct {
	http *http.Client
}

// NewClient creates a Client. A nil httpClient gets DefaultTimeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: httpClient}
}

// Send performs exactly one provider call for history.
func (c *Client) Send(ctx context.Context, cfg model.ProviderConfig, history model.Conversation) (model.AgentReply, error) {
	if cfg.APIKey == "" {
		return model.AgentReply{}, &Error{Provider: cfg.ID, Kind: KindMissingCredential}
	}
	if len(history) == 0 {
		return model.AgentReply{}, ErrEmptyHistory
	}

	start := time.Now()

	var (
		reply model.AgentReply
		err   error
	)
	switch cfg.ID {
	case model.ProviderOpenAI, model.ProviderSambanova:
		reply, err = c.sendChatCompletion(ctx, cfg, history)
	case model.ProviderGemini:
		reply, err = c.sendGemini(ctx, cfg, history)
	case model.ProviderAnthropic:
		reply, err = c.sendAnthropic(ctx, cfg, history)
	default:
		return model.AgentReply{}, &Error{Provider: cfg.ID, Kind: KindMalformed, Message: "unsupported provider"}
	}
	if err != nil {
		return model.AgentReply{}, classify(cfg.ID, err)
	}

	reply.Latency = time.Since(start)
	return reply, nil
}
