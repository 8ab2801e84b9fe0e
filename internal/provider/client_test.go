package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/agent-bench/internal/model"
)

const (
	chatCompletionOK = `{"id":"c1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"[RUN_COMMAND echo hi]"}}],
"usage":{"prompt_tokens":11,"completion_tokens":4,"total_tokens":15}}`

	geminiOK = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"world"}]},"finishReason":"STOP"}],
"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2}}`

	anthropicOK = `{"id":"msg_1","type":"message","role":"assistant","model":"claude",
"content":[{"type":"text","text":"[SEARCH: go]"}],"stop_reason":"end_turn",
"usage":{"input_tokens":9,"output_tokens":3}}`
)

type capture struct {
	hits    atomic.Int32
	path    string
	headers http.Header
	body    map[string]any
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.hits.Add(1)
		c.path = r.URL.Path
		c.headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		c.body = map[string]any{}
		_ = json.Unmarshal(raw, &c.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func seedHistory() model.Conversation {
	return model.Conversation{}.
		Append(model.RoleSystem, "You can run commands.").
		Append(model.RoleUser, "say hi").
		Append(model.RoleAssistant, "[RUN_COMMAND echo hi]").
		Append(model.RoleTool, "Command output:\nhi")
}

func cfgFor(id model.ProviderID, baseURL string) model.ProviderConfig {
	return model.ProviderConfig{ID: id, BaseURL: baseURL, Model: "test-model", APIKey: "test-key", Temperature: 0.1, TopP: 0.1}
}

func TestSend_OpenAI(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, chatCompletionOK)
	client := NewClient(srv.Client())

	reply, err := client.Send(context.Background(), cfgFor(model.ProviderOpenAI, srv.URL+"/v1"), seedHistory())
	require.NoError(t, err)

	assert.Equal(t, "[RUN_COMMAND echo hi]", reply.Text)
	assert.Equal(t, 11, reply.Usage.InputTokens)
	assert.Equal(t, 4, reply.Usage.OutputTokens)

	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, "Bearer test-key", c.headers.Get("Authorization"))
	assert.Equal(t, "test-model", c.body["model"])
	assert.InDelta(t, 0.1, c.body["temperature"], 1e-9)

	msgs, ok := c.body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "system"}, roles)
}

func TestSend_SambanovaUsesChatCompletions(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, chatCompletionOK)
	client := NewClient(srv.Client())

	_, err := client.Send(context.Background(), cfgFor(model.ProviderSambanova, srv.URL+"/v1/"), seedHistory())
	require.NoError(t, err)
	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, "Bearer test-key", c.headers.Get("Authorization"))
}

func TestSend_Gemini(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, geminiOK)
	client := NewClient(srv.Client())

	reply, err := client.Send(context.Background(), cfgFor(model.ProviderGemini, srv.URL+"/v1beta/"), seedHistory())
	require.NoError(t, err)

	assert.Equal(t, "Hello world", reply.Text)
	assert.Equal(t, 7, reply.Usage.InputTokens)
	assert.Equal(t, "/v1beta/models/test-model:generateContent", c.path)
	assert.Equal(t, "test-key", c.headers.Get("x-goog-api-key"))
	assert.Empty(t, c.headers.Get("Authorization"))

	contents, ok := c.body["contents"].([]any)
	require.True(t, ok)
	// system -> user + "Understood.", then user, assistant, tool
	var roles []string
	for _, item := range contents {
		roles = append(roles, item.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"user", "model", "user", "model", "user"}, roles)
	assert.NotNil(t, c.body["generationConfig"])
}

func TestSend_Anthropic(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, anthropicOK)
	client := NewClient(srv.Client())

	reply, err := client.Send(context.Background(), cfgFor(model.ProviderAnthropic, srv.URL), seedHistory())
	require.NoError(t, err)

	assert.Equal(t, "[SEARCH: go]", reply.Text)
	assert.Equal(t, 9, reply.Usage.InputTokens)
	assert.Equal(t, "/v1/messages", c.path)
	assert.Equal(t, "test-key", c.headers.Get("X-Api-Key"))

	msgs, ok := c.body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3) // system lifted out
	assert.NotNil(t, c.body["system"])
}

func TestSend_NeverMutatesHistory(t *testing.T) {
	responses := map[model.ProviderID]string{
		model.ProviderOpenAI:    chatCompletionOK,
		model.ProviderSambanova: chatCompletionOK,
		model.ProviderGemini:    geminiOK,
		model.ProviderAnthropic: anthropicOK,
	}

	for id, body := range responses {
		t.Run(string(id), func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, body)
			client := NewClient(srv.Client())

			history := seedHistory()
			before := history.Clone()

			_, err := client.Send(context.Background(), cfgFor(id, srv.URL+"/v1/"), history)
			require.NoError(t, err)
			assert.Equal(t, before, history)
		})
	}
}

func TestSend_MissingCredentialFailsBeforeNetwork(t *testing.T) {
	for _, id := range model.Providers {
		t.Run(string(id), func(t *testing.T) {
			srv, c := newServer(t, http.StatusOK, chatCompletionOK)
			cfg := cfgFor(id, srv.URL)
			cfg.APIKey = ""

			_, err := NewClient(srv.Client()).Send(context.Background(), cfg, seedHistory())

			require.Error(t, err)
			assert.True(t, IsMissingCredential(err))
			assert.Equal(t, int32(0), c.hits.Load())
		})
	}
}

func TestSend_EmptyHistory(t *testing.T) {
	_, err := NewClient(nil).Send(context.Background(), cfgFor(model.ProviderOpenAI, "http://127.0.0.1:1"), nil)
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestSend_UnsupportedProviderIsTyped(t *testing.T) {
	cfg := cfgFor(model.ProviderOpenAI, "http://127.0.0.1:1")
	cfg.ID = model.ProviderID("mistral")
	_, err := NewClient(nil).Send(context.Background(), cfg, model.Conversation{}.Append(model.RoleUser, "hi"))
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestSend_HTTPStatus(t *testing.T) {
	tests := []struct {
		id        model.ProviderID
		status    int
		body      string
		retryable bool
	}{
		{model.ProviderOpenAI, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, true},
		{model.ProviderGemini, http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid"}}`, false},
		{model.ProviderGemini, http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota"}}`, true},
		{model.ProviderAnthropic, http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			srv, c := newServer(t, tt.status, tt.body)

			_, err := NewClient(srv.Client()).Send(context.Background(), cfgFor(tt.id, srv.URL+"/v1/"), seedHistory())

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindHTTPStatus, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, pe.Retryable())
			assert.Equal(t, int32(1), c.hits.Load(), "adapter must not retry")
		})
	}
}

func TestSend_Malformed(t *testing.T) {
	tests := []struct {
		name string
		id   model.ProviderID
		body string
		want string
	}{
		{"openai no choices", model.ProviderOpenAI, `{"id":"c1","choices":[]}`, "no choices"},
		{"gemini no candidates", model.ProviderGemini, `{"candidates":[]}`, "no candidates"},
		{"gemini blocked", model.ProviderGemini, `{"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY"},
		{"gemini no text", model.ProviderGemini, `{"candidates":[{"finishReason":"MAX_TOKENS","content":{"parts":[]}}]}`, "no text parts"},
		{"gemini invalid json", model.ProviderGemini, `not json`, "not valid JSON"},
		{"anthropic no text", model.ProviderAnthropic, `{"id":"m","type":"message","role":"assistant","content":[],"stop_reason":"max_tokens","usage":{"input_tokens":1,"output_tokens":0}}`, "no text content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, tt.body)

			_, err := NewClient(srv.Client()).Send(context.Background(), cfgFor(tt.id, srv.URL+"/v1/"), seedHistory())

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindMalformed, pe.Kind)
			assert.Contains(t, pe.Error(), tt.want)
			assert.False(t, pe.Retryable())
		})
	}
}

func TestSend_Network(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	for _, id := range model.Providers {
		t.Run(string(id), func(t *testing.T) {
			_, err := NewClient(&http.Client{Timeout: time.Second}).Send(context.Background(), cfgFor(id, base+"/v1/"), seedHistory())

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindNetwork, pe.Kind)
			assert.True(t, pe.Retryable())
		})
	}
}

func TestSend_CancelledContextIsNetworkAndNotRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(srv.Client()).Send(ctx, cfgFor(model.ProviderGemini, srv.URL), seedHistory())

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindNetwork, pe.Kind)
	assert.False(t, pe.Retryable())
}

func TestGeminiContents_MergesAdjacentRoles(t *testing.T) {
	conv := model.Conversation{}.
		Append(model.RoleUser, "first").
		Append(model.RoleUser, "second").
		Append(model.RoleAssistant, "answer")

	contents := geminiContents(conv)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "model", contents[1].Role)
}

func TestAnthropicMessages_LiftsSystem(t *testing.T) {
	system, msgs := anthropicMessages(seedHistory())
	assert.Equal(t, "You can run commands.", system)
	require.Len(t, msgs, 3)
}
