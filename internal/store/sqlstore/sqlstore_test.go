package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
	"github.com/ragdesk/kb-chatbot/internal/store/storetest"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chatbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return open(t)
	})
}

func TestAppendMessageCountsInSQL(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	conv := storetest.NewConversation("alice")
	require.NoError(t, s.CreateConversation(ctx, conv))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendMessage(ctx, storetest.NewMessage(conv, model.RoleUser, "hi"))
		}()
	}
	wg.Wait()

	msgs, err := s.RecentMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	got, err := s.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, len(msgs), got.MessageCount)
}

func TestPing(t *testing.T) {
	assert.NoError(t, open(t).Ping(context.Background()))
}
