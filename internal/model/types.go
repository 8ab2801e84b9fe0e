/*
PURPOSE:
  Defines the core data structures used throughout Agent Bench.
  These models represent providers, conversations, tool directives,
  tool results, sessions and benchmark records.

REQUIREMENTS:
  User-specified:
  - A conversation is an ordered, append-only list of role-tagged messages.
  - A reply carries at most one tool directive.
  - Record duration, tokens, replies and tool outcome per benchmark turn.

  Implementation-discovered:
  - Need JSON/YAML tags for session export.
  - APIKey must never be serialized.

ARCHITECTURE INTEGRATION:
  - Used by: every internal package.
  - Shared across boundaries, depends on nothing internal.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Conversation.Append never touches existing elements.

USAGE:
  conv = conv.Append(model.RoleUser, "hello")

RELATED FILES:
  - internal/model/tool.go
  - internal/output/csv.go

MAINTENANCE:
  - Update the CSV/JSON writers when TurnRecord changes.
*/

package model

import (
	"fmt"
	"strings"
	"time"
)

// ProviderID identifies one of the supported LLM backends.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderSambanova ProviderID = "sambanova"
	ProviderGemini    ProviderID = "gemini"
	ProviderAnthropic ProviderID = "anthropic"
)

// Providers lists every supported provider in menu order.
var Providers = []ProviderID{ProviderOpenAI, ProviderSambanova, ProviderGemini, ProviderAnthropic}

// ParseProviderID accepts a provider name or its 1-based menu number.
func ParseProviderID(s string) (ProviderID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, p := range Providers {
		if s == string(p) || s == fmt.Sprint(i+1) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// ProviderConfig is the resolved, immutable configuration of one provider.
type ProviderConfig struct {
	ID          ProviderID `json:"id" yaml:"id"`
	BaseURL     string     `json:"base_url" yaml:"base_url"`
	Model       string     `json:"model" yaml:"model"`
	APIKey      string     `json:"-" yaml:"-"`
	Temperature float64    `json:"temperature" yaml:"temperature"`
	TopP        float64    `json:"top_p" yaml:"top_p"`
	MaxTokens   int        `json:"max_tokens" yaml:"max_tokens"`
}

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry of a conversation.
type Message struct {
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Ordinal   int       `json:"ordinal" yaml:"ordinal"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Conversation is an ordered, append-only message history.
type Conversation []Message

// Append returns the conversation extended by one message with the next ordinal.
// The receiver's elements are never modified; a fresh backing array is used so
// callers holding the old slice never observe the new element.
func (c Conversation) Append(role Role, content string) Conversation {
	out := make(Conversation, len(c), len(c)+1)
	copy(out, c)
	return append(out, Message{
		Role:      role,
		Content:   content,
		Ordinal:   len(c),
		CreatedAt: time.Now().UTC(),
	})
}

// Extend appends already-built messages, renumbering their ordinals.
func (c Conversation) Extend(msgs ...Message) Conversation {
	out := make(Conversation, len(c), len(c)+len(msgs))
	copy(out, c)
	for _, m := range msgs {
		m.Ordinal = len(out)
		out = append(out, m)
	}
	return out
}

// Clone returns an independent copy.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AgentReply is the normalized reply of one provider call.
type AgentReply struct {
	Text      string         `json:"text"`
	Directive *ToolDirective `json:"directive,omitempty"`
	Usage     Usage          `json:"usage"`
	Latency   time.Duration  `json:"latency"`
}

// Session is one benchmarking conversation with a single provider.
type Session struct {
	ID           string         `json:"id" yaml:"id"`
	Provider     ProviderConfig `json:"provider" yaml:"provider"`
	Conversation Conversation   `json:"conversation" yaml:"conversation"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
}

// SessionSummary is the list view of a stored session.
type SessionSummary struct {
	ID           string     `json:"id"`
	Provider     ProviderID `json:"provider"`
	Model        string     `json:"model"`
	CreatedAt    time.Time  `json:"created_at"`
	MessageCount int        `json:"message_count"`
}

// TurnRecord is the benchmark row written for every turn.
type TurnRecord struct {
	SessionID    string        `json:"session_id"`
	Provider     ProviderID    `json:"provider"`
	Model        string        `json:"model"`
	Prompt       string        `json:"prompt"`
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration"`
	FirstReply   string        `json:"first_reply"`
	ToolKind     ToolKind      `json:"tool_kind,omitempty"`
	ToolArgument string        `json:"tool_argument,omitempty"`
	ToolSuccess  bool          `json:"tool_success"`
	ToolError    string        `json:"tool_error,omitempty"`
	ToolDuration time.Duration `json:"tool_duration"`
	FinalReply   string        `json:"final_reply,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Error        string        `json:"error,omitempty"` // If the turn failed
}
