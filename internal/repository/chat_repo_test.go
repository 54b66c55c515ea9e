package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/testutil"
)

func TestChatRepository_CreateSessionWithContext(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	ctx := context.Background()

	session := &model.ChatSession{UserID: "u-1", Status: model.SessionStatusAI}
	first := &model.ChatMessage{Role: model.MessageRoleSystem, Content: "job context", Hidden: true}
	require.NoError(t, repo.CreateSession(ctx, session, first))

	found, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.MessageCount)
	assert.Equal(t, 1, first.Seq)

	visible, err := repo.Log(ctx, session.ID, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := repo.Log(ctx, session.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Hidden)
}

func TestChatRepository_Append(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	ctx := context.Background()
	session := testutil.TestSession(t, db, "u-1", model.SessionStatusAI)

	for i := 1; i <= 3; i++ {
		msg := &model.ChatMessage{SessionID: session.ID, Role: model.MessageRoleUser, Content: fmt.Sprintf("m%d", i)}
		ok, err := repo.Append(ctx, msg, model.OpenSessionStatuses)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, msg.Seq)
	}

	// 状态不在允许范围内时拒绝
	msg := &model.ChatMessage{SessionID: session.ID, Role: model.MessageRoleAdmin, Content: "hi"}
	ok, err := repo.Append(ctx, msg, []string{model.SessionStatusHuman})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Append(ctx, &model.ChatMessage{SessionID: "missing", Role: "user", Content: "x"}, model.OpenSessionStatuses)
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := repo.Log(ctx, session.ID, false)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "m1", log[0].Content)
	assert.Equal(t, "m3", log[2].Content)
}

func TestChatRepository_ConcurrentAppendsGetDistinctSeq(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	session := testutil.TestSession(t, db, "u-1", model.SessionStatusAI)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &model.ChatMessage{SessionID: session.ID, Role: model.MessageRoleUser, Content: fmt.Sprintf("m%d", i)}
			ok, err := repo.Append(context.Background(), msg, model.OpenSessionStatuses)
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	log, err := repo.Log(context.Background(), session.ID, true)
	require.NoError(t, err)
	require.Len(t, log, n)
	for i, m := range log {
		assert.Equal(t, i+1, m.Seq)
	}
}

func TestChatRepository_Transition(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	ctx := context.Background()
	session := testutil.TestSession(t, db, "u-1", model.SessionStatusAI)

	ok, err := repo.Transition(ctx, session.ID, model.SessionStatusAI, model.SessionStatusHuman,
		&model.ChatMessage{Role: model.MessageRoleSystem, Content: "taken over"})
	require.NoError(t, err)
	assert.True(t, ok)

	// from 不匹配
	ok, err = repo.Transition(ctx, session.ID, model.SessionStatusAI, model.SessionStatusHuman,
		&model.ChatMessage{Role: model.MessageRoleSystem, Content: "again"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Transition(ctx, session.ID, model.SessionStatusHuman, model.SessionStatusClosed,
		&model.ChatMessage{Role: model.MessageRoleSystem, Content: "closed"})
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusClosed, found.Status)
	assert.NotNil(t, found.ClosedAt)
	assert.Equal(t, 2, found.MessageCount)

	log, err := repo.Log(ctx, session.ID, false)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "closed", log[1].Content)
}

func TestChatRepository_Tail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	session := testutil.TestSession(t, db, "u-1", model.SessionStatusAI)

	contents := make([]string, 15)
	for i := range contents {
		contents[i] = fmt.Sprintf("m%d", i+1)
	}
	testutil.TestMessages(t, db, session, model.MessageRoleUser, contents...)

	tail, err := repo.Tail(context.Background(), session.ID, 10, false)
	require.NoError(t, err)
	require.Len(t, tail, 10)
	assert.Equal(t, 6, tail[0].Seq)
	assert.Equal(t, 15, tail[9].Seq)
}

func TestChatRepository_Lists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	ctx := context.Background()

	testutil.TestSession(t, db, "u-1", model.SessionStatusAI)
	testutil.TestSession(t, db, "u-1", model.SessionStatusHuman)
	testutil.TestSession(t, db, "u-2", model.SessionStatusClosed)

	human, total, err := repo.ListSessions(ctx, model.SessionStatusHuman, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, human, 1)

	_, total, err = repo.ListSessions(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	mine, err := repo.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
