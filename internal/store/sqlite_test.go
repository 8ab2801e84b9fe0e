package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/agent-bench/internal/model"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var geminiCfg = model.ProviderConfig{ID: model.ProviderGemini, Model: "gemini-2.0-flash", APIKey: "secret"}

func TestCreateAppendLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateSession(ctx, geminiCfg)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv := model.Conversation{}.
		Append(model.RoleSystem, "be brief").
		Append(model.RoleUser, "hi").
		Append(model.RoleAssistant, "hello")
	require.NoError(t, s.AppendTurn(ctx, id, conv...))

	sess, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, model.ProviderGemini, sess.Provider.ID)
	assert.Equal(t, "gemini-2.0-flash", sess.Provider.Model)
	assert.Empty(t, sess.Provider.APIKey, "keys are never stored")
	require.Len(t, sess.Conversation, 3)
	for i, m := range sess.Conversation {
		assert.Equal(t, i, m.Ordinal)
		assert.Equal(t, conv[i].Role, m.Role)
		assert.Equal(t, conv[i].Content, m.Content)
	}
}

func TestAppendTurn_FailedRowRejectsBatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.CreateSession(ctx, geminiCfg)
	require.NoError(t, err)

	conv := model.Conversation{}.Append(model.RoleUser, "one")
	require.NoError(t, s.AppendTurn(ctx, id, conv...))

	batch := []model.Message{
		{Role: model.RoleAssistant, Content: "two"},
		{Role: model.Role("narrator"), Content: "bad role"},
	}
	require.Error(t, s.AppendTurn(ctx, id, batch...))

	sess, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sess.Conversation, 1)
}

func TestAppendTurn_NumbersAfterLastStored(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.CreateSession(ctx, geminiCfg)
	require.NoError(t, err)

	conv := model.Conversation{}.Append(model.RoleSystem, "sys")
	require.NoError(t, s.AppendTurn(ctx, id, conv...))

	// Ordinals 1 and 2 were never stored; the next batch still lands at 1.
	conv = conv.Append(model.RoleUser, "lost").Append(model.RoleAssistant, "lost")
	before := len(conv)
	conv = conv.Append(model.RoleUser, "q").Append(model.RoleAssistant, "a")
	require.NoError(t, s.AppendTurn(ctx, id, conv[before:]...))
	require.NoError(t, s.AppendTurn(ctx, id, model.Message{Role: model.RoleUser, Content: "again"}))

	sess, err := s.LoadSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, sess.Conversation, 4)
	for i, m := range sess.Conversation {
		assert.Equal(t, i, m.Ordinal)
	}
	assert.Equal(t, "q", sess.Conversation[1].Content)
	assert.Equal(t, "again", sess.Conversation[3].Content)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.ExportSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = s.AppendTurn(ctx, "missing", model.Message{Role: model.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, err := s.CreateSession(ctx, geminiCfg)
	require.NoError(t, err)
	b, err := s.CreateSession(ctx, model.ProviderConfig{ID: model.ProviderOpenAI, Model: "gpt-4-turbo"})
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(ctx, a, model.Conversation{}.Append(model.RoleUser, "x")...))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	counts := map[string]int{}
	for _, sum := range list {
		counts[sum.ID] = sum.MessageCount
	}
	assert.Equal(t, 1, counts[a])
	assert.Equal(t, 0, counts[b])
}

func TestExportSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.CreateSession(ctx, geminiCfg)
	require.NoError(t, err)

	conv := model.Conversation{}.
		Append(model.RoleUser, "what time is it").
		Append(model.RoleAssistant, "[RUN_COMMAND date]").
		Append(model.RoleTool, "Command output:\nMon").
		Append(model.RoleAssistant, "Monday")
	require.NoError(t, s.AppendTurn(ctx, id, conv...))

	text, err := s.ExportSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t,
		"user: what time is it\nassistant: [RUN_COMMAND date]\ntool: Command output:\nMon\nassistant: Monday\n",
		text)
}

func TestConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	const sessions, turns = 4, 10
	ids := make([]string, sessions)
	for i := range ids {
		id, err := s.CreateSession(ctx, geminiCfg)
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			conv := model.Conversation{}
			for i := 0; i < turns; i++ {
				before := len(conv)
				conv = conv.Append(model.RoleUser, fmt.Sprintf("q%d", i)).
					Append(model.RoleAssistant, fmt.Sprintf("a%d", i))
				if err := s.AppendTurn(ctx, id, conv[before:]...); err != nil {
					errs <- err
					return
				}
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, id := range ids {
		sess, err := s.LoadSession(ctx, id)
		require.NoError(t, err)
		require.Len(t, sess.Conversation, 2*turns)
		assert.Equal(t, "q0", sess.Conversation[0].Content)
		assert.Equal(t, "a9", sess.Conversation[2*turns-1].Content)
	}
}
