package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/azureiya85/YouApp-Test/internal/datamodels/message"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&message.Message{}))
	return db
}

func mustInsert(t *testing.T, repo message.Repository, from, to, content string) *message.Message {
	t.Helper()
	m := &message.Message{SenderID: from, RecipientID: to, Content: content}
	require.NoError(t, repo.Insert(context.Background(), m))
	return m
}

func TestInsertAssignsServerFields(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))

	m1 := mustInsert(t, repo, "alice", "bob", "第一条")
	m2 := mustInsert(t, repo, "alice", "bob", "第二条")

	require.NotZero(t, m1.ID)
	require.Equal(t, message.StatusSent, m1.Status)
	require.False(t, m1.Timestamp.IsZero())

	// 同一发送方向的时间戳单调不减
	require.False(t, m2.Timestamp.Before(m1.Timestamp))
	require.Greater(t, m2.ID, m1.ID)
}

func TestFindConversationOrderAndSymmetry(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	a := mustInsert(t, repo, "alice", "bob", "1")
	b := mustInsert(t, repo, "bob", "alice", "2")
	c := mustInsert(t, repo, "alice", "bob", "3")
	// 第三方的消息不应混进来
	mustInsert(t, repo, "carol", "bob", "noise")
	mustInsert(t, repo, "alice", "carol", "noise")

	ab, err := repo.FindConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, ab, 3)
	require.Equal(t, []uint64{a.ID, b.ID, c.ID}, []uint64{ab[0].ID, ab[1].ID, ab[2].ID})

	// 查询方向对调结果一致
	ba, err := repo.FindConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, ba, 3)
	for i := range ab {
		require.Equal(t, ab[i].ID, ba[i].ID)
	}
}

func TestFindConversationEmpty(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))

	list, err := repo.FindConversation(context.Background(), "alice", "nobody")
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestMarkIncomingAsReadIdempotent(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	m1 := mustInsert(t, repo, "alice", "bob", "1")
	m2 := mustInsert(t, repo, "alice", "bob", "2")
	m3 := mustInsert(t, repo, "alice", "bob", "3")
	// 反方向的消息不受影响
	back := mustInsert(t, repo, "bob", "alice", "reply")

	n, ids, err := repo.MarkIncomingAsRead(ctx, "alice", "bob")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.ElementsMatch(t, []uint64{m1.ID, m2.ID, m3.ID}, ids)

	for _, id := range ids {
		m, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, message.StatusRead, m.Status)
	}
	got, err := repo.GetByID(ctx, back.ID)
	require.NoError(t, err)
	require.Equal(t, message.StatusSent, got.Status)

	// 再调一次必须是零变更
	n, ids, err = repo.MarkIncomingAsRead(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, ids)
}

func TestUpdatePersistsReactionsAndFavorite(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	m := mustInsert(t, repo, "alice", "bob", "hello")
	m.Reactions = []message.Reaction{{Emoji: "👍", UserIDs: []string{"bob"}}}
	m.IsFavorited = true
	require.NoError(t, repo.Update(ctx, m))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.IsFavorited)
	require.Len(t, got.Reactions, 1)
	require.Equal(t, "👍", got.Reactions[0].Emoji)
	require.Equal(t, []string{"bob"}, got.Reactions[0].UserIDs)
	// 状态不应被顺带改掉
	require.Equal(t, message.StatusSent, got.Status)
}
