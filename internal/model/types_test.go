package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AppendAssignsOrdinals(t *testing.T) {
	var conv Conversation
	conv = conv.Append(RoleSystem, "seed")
	conv = conv.Append(RoleUser, "hello")

	require.Len(t, conv, 2)
	assert.Equal(t, 0, conv[0].Ordinal)
	assert.Equal(t, 1, conv[1].Ordinal)
	assert.Equal(t, RoleUser, conv[1].Role)
}

func TestConversation_AppendDoesNotShareBackingArray(t *testing.T) {
	base := make(Conversation, 0, 8).Append(RoleSystem, "seed")

	a := base.Append(RoleUser, "a")
	b := base.Append(RoleUser, "b")

	assert.Len(t, base, 1)
	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
}

func TestConversation_ExtendRenumbers(t *testing.T) {
	conv := Conversation{}.Append(RoleSystem, "seed")
	conv = conv.Extend(
		Message{Role: RoleUser, Content: "q", Ordinal: 99},
		Message{Role: RoleAssistant, Content: "a", Ordinal: 99},
	)

	require.Len(t, conv, 3)
	assert.Equal(t, 1, conv[1].Ordinal)
	assert.Equal(t, 2, conv[2].Ordinal)
}

func TestParseProviderID(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderID
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"2", ProviderSambanova, false},
		{"3", ProviderGemini, false},
		{"anthropic", ProviderAnthropic, false},
		{"OpenAI", ProviderOpenAI, false},
		{" Gemini ", ProviderGemini, false},
		{"mistral", "", true},
		{"9", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolResult_Content(t *testing.T) {
	ok := ToolResult{Kind: ToolRunCommand, Argument: "echo hi", Output: "hi\n", Success: true}
	assert.Equal(t, "Command output:\nhi\n", ok.Content())

	failed := ToolResult{Kind: ToolRunCommand, Output: "", Error: "exit status 2"}
	assert.Contains(t, failed.Content(), "exit status 2")
	assert.Contains(t, failed.Content(), "(no output)")

	search := ToolResult{Kind: ToolSearch, Argument: "go", Output: "Go is a language", Success: true}
	assert.Equal(t, "Web search results for 'go':\nGo is a language", search.Content())

	searchFailed := ToolResult{Kind: ToolSearch, Argument: "go", Error: "timeout"}
	assert.Contains(t, searchFailed.Content(), "Failed to perform web search")
}

func TestToolDirective_String(t *testing.T) {
	assert.Equal(t, "[RUN_COMMAND ls -la]", RunCommand("ls -la").String())
	assert.Equal(t, "[SEARCH: golang]", Search("golang").String())
}
