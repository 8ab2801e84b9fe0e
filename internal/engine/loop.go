/*
PURPOSE:
  The conversation loop. Drives one benchmarking turn: prompt, provider
  call, directive parsing, optional tool round trip, final reply, persistence.

REQUIREMENTS:
  User-specified:
  - At most one tool round trip per turn.
  - A completed turn is appended to the conversation atomically.
  - Missing credentials abort the session; other provider errors abort the turn.
  - Tool failures are fed back to the model, never raised.
  - Store failures never block the conversation.

  Implementation-discovered:
  - The benchmark runner needs a record of failed turns too (TurnOutcome).
  - Resuming a stored session reuses its provider and model.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (chat), internal/engine/runner.go (bench)
  - Uses: internal/directive, internal/store, internal/provider

ERROR HANDLING:
  - Start returns *config.ConfigError when a provider is unusable.
  - Turn returns provider errors; ErrSessionAborted wraps fatal ones.

IMPLEMENTATION RULES:
  - Never mutate s.Conversation until the turn completes.
  - Hooks run synchronously on the loop goroutine.

RELATED FILES:
  - internal/engine/client.go (retry policy)
  - internal/engine/runner.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/agent-bench/internal/config"
	"github.com/daryltucker/agent-bench/internal/directive"
	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
	"github.com/daryltucker/agent-bench/internal/provider"
	"github.com/daryltucker/agent-bench/internal/store"
)

// State is a step of the turn state machine.
type State int

const (
	StateAwaitingUserPrompt State = iota
	StateAdapterCall
	StateParsingReply
	StateToolExecution
	StateFollowupAdapterCall
	StateTurnComplete
)

func (s State) String() string {
	switch s {
	case StateAwaitingUserPrompt:
		return "awaiting_user_prompt"
	case StateAdapterCall:
		return "adapter_call"
	case StateParsingReply:
		return "parsing_reply"
	case StateToolExecution:
		return "tool_execution"
	case StateFollowupAdapterCall:
		return "followup_adapter_call"
	case StateTurnComplete:
		return "turn_complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrSessionAborted wraps errors after which a session cannot continue.
	ErrSessionAborted = errors.New("session aborted")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrNoStore        = errors.New("session store is not available")
)

// Hooks observe a turn as it runs. Any of them may be nil.
type Hooks struct {
	OnState      func(State)
	OnReply      func(model.AgentReply)
	OnTool       func(model.ToolDirective)
	OnToolResult func(model.ToolResult)
}

// ProviderResolver turns a provider id into a usable config.
// *config.Config implements it.
type ProviderResolver interface {
	Provider(id model.ProviderID) (model.ProviderConfig, error)
}

// Options wires a Loop. Sender is required; Tools nil disables tool use;
// Store nil keeps sessions in memory only.
type Options struct {
	Sender       Sender
	Tools        ToolRunner
	Store        store.Store
	Metrics      *Metrics
	Hooks        Hooks
	Retry        RetryPolicy
	SystemPrompt string
}

// Loop runs conversation turns. One Loop may drive several sessions, but a
// single session must only be used from one goroutine at a time.
type Loop struct {
	opts Options
	now  func() time.Time
}

// NewLoop creates a loop.
func NewLoop(opts Options) *Loop {
	return &Loop{opts: opts, now: time.Now}
}

// Session is a live conversation with one provider.
type Session struct {
	model.Session
	// Persisted is false when the store was unavailable at start.
	Persisted bool
	aborted   bool
}

// Aborted reports whether a fatal error ended the session.
func (s *Session) Aborted() bool { return s.aborted }

// TurnOutcome describes what happened during one turn, including failures.
type TurnOutcome struct {
	SessionID  string
	Provider   model.ProviderID
	Model      string
	Prompt     string
	Started    time.Time
	Duration   time.Duration
	FirstReply model.AgentReply
	Directive  *model.ToolDirective
	ToolResult *model.ToolResult
	FinalReply *model.AgentReply
	Attempts   int
	// Messages are the entries the turn appended. Empty on failure.
	Messages []model.Message
	Err      error
}

// Reply is the text shown to the user for a completed turn.
func (o TurnOutcome) Reply() string {
	if o.FinalReply != nil {
		return o.FinalReply.Text
	}
	return o.FirstReply.Text
}

// Record flattens the outcome into a benchmark row.
func (o TurnOutcome) Record() model.TurnRecord {
	r := model.TurnRecord{
		SessionID:    o.SessionID,
		Provider:     o.Provider,
		Model:        o.Model,
		Prompt:       o.Prompt,
		Timestamp:    o.Started,
		Duration:     o.Duration,
		FirstReply:   o.FirstReply.Text,
		InputTokens:  o.FirstReply.Usage.InputTokens,
		OutputTokens: o.FirstReply.Usage.OutputTokens,
	}
	if o.Directive != nil {
		r.ToolKind = o.Directive.Kind
		r.ToolArgument = o.Directive.Argument
	}
	if o.ToolResult != nil {
		r.ToolSuccess = o.ToolResult.Success
		r.ToolError = o.ToolResult.Error
		r.ToolDuration = o.ToolResult.Duration
	}
	if o.FinalReply != nil {
		r.FinalReply = o.FinalReply.Text
		r.InputTokens += o.FinalReply.Usage.InputTokens
		r.OutputTokens += o.FinalReply.Usage.OutputTokens
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

// Start opens a new session with the given provider.
func (l *Loop) Start(ctx context.Context, providers ProviderResolver, id model.ProviderID) (*Session, error) {
	pc, err := providers.Provider(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pc.APIKey) == "" {
		return nil, &config.ConfigError{Provider: id, Field: "api_key", Reason: "not set"}
	}

	s := &Session{Session: model.Session{
		ID:        uuid.NewString(),
		Provider:  pc,
		CreatedAt: l.now().UTC(),
	}}
	s.Conversation = model.Conversation{}.Append(model.RoleSystem, l.systemPrompt(pc))

	if l.opts.Store != nil {
		storedID, err := l.opts.Store.CreateSession(ctx, pc)
		if err != nil {
			l.opts.Metrics.storeFailed()
			output.Logger.Warn().Err(err).Str("provider", string(id)).
				Msg("Failed to persist session, continuing in memory")
		} else {
			s.ID = storedID
			s.Persisted = true
			l.persist(ctx, s, s.Conversation)
		}
	}

	output.Logger.Info().
		Str("session", s.ID).
		Str("provider", string(id)).
		Str("model", pc.Model).
		Bool("tools", l.opts.Tools != nil).
		Msg("Session started")
	return s, nil
}

// Resume reloads a stored session. The stored provider and model are kept;
// credentials come from the current configuration.
func (l *Loop) Resume(ctx context.Context, providers ProviderResolver, sessionID string) (*Session, error) {
	if l.opts.Store == nil {
		return nil, ErrNoStore
	}
	stored, err := l.opts.Store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pc, err := providers.Provider(stored.Provider.ID)
	if err != nil {
		return nil, err
	}
	if stored.Provider.Model != "" {
		pc.Model = stored.Provider.Model
	}

	s := &Session{Session: stored, Persisted: true}
	s.Provider = pc
	s.Conversation = model.Conversation{}.Extend(stored.Conversation...)
	if len(s.Conversation) == 0 {
		s.Conversation = model.Conversation{}.Append(model.RoleSystem, l.systemPrompt(pc))
		l.persist(ctx, s, s.Conversation)
	}

	output.Logger.Info().
		Str("session", s.ID).
		Str("provider", string(pc.ID)).
		Int("messages", len(s.Conversation)).
		Msg("Session resumed")
	return s, nil
}

// Turn runs one prompt through the state machine. On error the session's
// conversation is left as it was and the outcome still describes the attempt.
func (l *Loop) Turn(ctx context.Context, s *Session, prompt string) (out TurnOutcome, err error) {
	out = TurnOutcome{
		SessionID: s.ID,
		Provider:  s.Provider.ID,
		Model:     s.Provider.Model,
		Prompt:    prompt,
		Started:   l.now().UTC(),
	}
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		out.Err = err
		l.setState(StateAwaitingUserPrompt)
	}()

	if s.aborted {
		return out, ErrSessionAborted
	}
	if strings.TrimSpace(prompt) == "" {
		return out, ErrEmptyPrompt
	}

	pending := s.Conversation.Append(model.RoleUser, prompt)

	l.setState(StateAdapterCall)
	first, attempts, err := sendWithRetry(ctx, l.opts.Sender, l.opts.Retry, s.Provider, pending, l.opts.Metrics)
	out.Attempts += attempts
	if err != nil {
		return out, l.fail(s, err)
	}

	l.setState(StateParsingReply)
	first = directive.Scan(first)
	out.FirstReply = first
	out.Directive = first.Directive
	if l.opts.Hooks.OnReply != nil {
		l.opts.Hooks.OnReply(first)
	}
	pending = pending.Append(model.RoleAssistant, first.Text)

	if first.Directive != nil && l.opts.Tools != nil {
		d := *first.Directive

		l.setState(StateToolExecution)
		if l.opts.Hooks.OnTool != nil {
			l.opts.Hooks.OnTool(d)
		}
		res := l.opts.Tools.Execute(ctx, d)
		out.ToolResult = &res
		l.opts.Metrics.observeTool(s.Provider.ID, res)
		if l.opts.Hooks.OnToolResult != nil {
			l.opts.Hooks.OnToolResult(res)
		}
		output.Logger.Debug().
			Str("session", s.ID).
			Str("kind", string(res.Kind)).
			Bool("success", res.Success).
			Dur("duration", res.Duration).
			Msg("Tool executed")
		pending = pending.Append(model.RoleTool, res.Content())

		l.setState(StateFollowupAdapterCall)
		final, attempts, err := sendWithRetry(ctx, l.opts.Sender, l.opts.Retry, s.Provider, pending, l.opts.Metrics)
		out.Attempts += attempts
		if err != nil {
			return out, l.fail(s, err)
		}
		out.FinalReply = &final
		if l.opts.Hooks.OnReply != nil {
			l.opts.Hooks.OnReply(final)
		}
		pending = pending.Append(model.RoleAssistant, final.Text)
	}

	added := pending[len(s.Conversation):]
	s.Conversation = pending
	out.Messages = added
	l.persist(ctx, s, added)

	l.setState(StateTurnComplete)
	l.opts.Metrics.observeTurn(s.Provider.ID, OutcomeCompleted)
	return out, nil
}

func (l *Loop) fail(s *Session, err error) error {
	if provider.IsMissingCredential(err) {
		s.aborted = true
		l.opts.Metrics.observeTurn(s.Provider.ID, OutcomeAborted)
		return fmt.Errorf("%w: %w", ErrSessionAborted, err)
	}
	l.opts.Metrics.observeTurn(s.Provider.ID, OutcomeFailed)
	return err
}

// persist hands messages to the store. Failures are logged and counted only.
func (l *Loop) persist(ctx context.Context, s *Session, msgs []model.Message) {
	if l.opts.Store == nil || !s.Persisted || len(msgs) == 0 {
		return
	}
	// A completed turn is stored even if the caller cancels right after.
	if err := l.opts.Store.AppendTurn(context.WithoutCancel(ctx), s.ID, msgs...); err != nil {
		l.opts.Metrics.storeFailed()
		output.Logger.Warn().Err(err).Str("session", s.ID).Msg("Failed to persist turn")
	}
}

func (l *Loop) setState(st State) {
	if l.opts.Hooks.OnState != nil {
		l.opts.Hooks.OnState(st)
	}
}

func (l *Loop) systemPrompt(pc model.ProviderConfig) string {
	if l.opts.SystemPrompt != "" {
		return l.opts.SystemPrompt
	}
	if l.opts.Tools == nil {
		return fmt.Sprintf("You are an AI assistant powered by the %s model.", pc.Model)
	}
	return fmt.Sprintf(`You are a helpful AI assistant powered by the %s model.
You have the ability to run any Linux shell command.
Your response MUST be ONLY the tool command. Do not add any explanation.
Do NOT use interactive commands (like 'nano', 'vim'). Use non-interactive commands like `+"`cat`"+` to read files.

Tool format:
- Run a shell command: `+"`[RUN_COMMAND <command to run>]`"+`
- Search the web: `+"`[SEARCH: your query]`"+`. Current year: %d`, pc.Model, l.now().Year())
}
