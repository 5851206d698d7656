package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/azureiya85/YouApp-Test/internal/datamodels/message"
)

// fakeRepo 内存仓储，模拟存储层行为
type fakeRepo struct {
	msgs       map[uint64]*message.Message
	nextID     uint64
	failInsert bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{msgs: make(map[uint64]*message.Message), nextID: 1}
}

func (r *fakeRepo) Insert(ctx context.Context, m *message.Message) error {
	if r.failInsert {
		return errors.New("db down")
	}
	m.ID = r.nextID
	r.nextID++
	m.Timestamp = time.Now().UTC()
	m.Status = message.StatusSent
	cp := *m
	r.msgs[m.ID] = &cp
	return nil
}

func (r *fakeRepo) FindConversation(ctx context.Context, a, b string) ([]*message.Message, error) {
	out := make([]*message.Message, 0)
	for id := uint64(1); id < r.nextID; id++ {
		m, ok := r.msgs[id]
		if !ok {
			continue
		}
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkIncomingAsRead(ctx context.Context, from, to string) (int64, []uint64, error) {
	var ids []uint64
	for id := uint64(1); id < r.nextID; id++ {
		m, ok := r.msgs[id]
		if !ok {
			continue
		}
		if m.SenderID == from && m.RecipientID == to && m.Status == message.StatusSent {
			m.Status = message.StatusRead
			ids = append(ids, id)
		}
	}
	return int64(len(ids)), ids, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uint64) (*message.Message, error) {
	m, ok := r.msgs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *m
	return &cp, nil
}

func (r *fakeRepo) Update(ctx context.Context, m *message.Message) error {
	cp := *m
	r.msgs[m.ID] = &cp
	return nil
}

// fakePublisher 记录所有发布调用
type fakePublisher struct {
	published []publishedMsg
	fail      bool
}

type publishedMsg struct {
	routingKey string
	body       []byte
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, publishedMsg{routingKey, body})
	return nil
}

func TestSendMessagePublishesAfterInsert(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewMessageService(repo, pub)

	m, err := svc.SendMessage(context.Background(), "alice", SendMessageInput{
		RecipientID: "bob",
		Content:     "hi",
	})
	require.NoError(t, err)
	require.Equal(t, message.StatusSent, m.Status)
	require.NotZero(t, m.ID)

	require.Len(t, pub.published, 1)
	require.Equal(t, "notifications.bob", pub.published[0].routingKey)

	var env struct {
		Type    string           `json:"type"`
		Payload *message.Message `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.published[0].body, &env))
	require.Equal(t, EnvelopeNewMessage, env.Type)
	require.Equal(t, "hi", env.Payload.Content)
	require.Equal(t, "bob", env.Payload.RecipientID)
	require.Equal(t, message.StatusSent, env.Payload.Status)
}

func TestSendMessageValidation(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewMessageService(repo, pub)
	ctx := context.Background()

	cases := []SendMessageInput{
		{Content: "hi"},                       // 缺收件人
		{RecipientID: "alice", Content: "hi"}, // 发给自己
		{RecipientID: "bob"},                  // 空正文且无附件
		{RecipientID: "bob", Attachment: &message.Attachment{Type: "video", URL: "x"}}, // 附件类型不支持
	}
	for _, in := range cases {
		_, err := svc.SendMessage(ctx, "alice", in)
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	require.Empty(t, pub.published)
	require.Empty(t, repo.msgs)
}

func TestSendMessageAttachmentOnlyAllowed(t *testing.T) {
	svc := NewMessageService(newFakeRepo(), &fakePublisher{})

	m, err := svc.SendMessage(context.Background(), "alice", SendMessageInput{
		RecipientID: "bob",
		Attachment:  &message.Attachment{Type: "image", URL: "https://example.com/a.jpg"},
	})
	require.NoError(t, err)
	require.Empty(t, m.Content)
	require.NotNil(t, m.Attachment)
}

func TestSendMessageInsertFailureNoPublish(t *testing.T) {
	repo := newFakeRepo()
	repo.failInsert = true
	pub := &fakePublisher{}
	svc := NewMessageService(repo, pub)

	_, err := svc.SendMessage(context.Background(), "alice", SendMessageInput{
		RecipientID: "bob", Content: "hi",
	})
	require.Error(t, err)
	// 落库失败绝不发布
	require.Empty(t, pub.published)
}

func TestSendMessagePublishFailureStillSucceeds(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{fail: true}
	svc := NewMessageService(repo, pub)

	// 持久化优先：发布失败只丢实时推送，操作本身成功
	m, err := svc.SendMessage(context.Background(), "alice", SendMessageInput{
		RecipientID: "bob", Content: "hi",
	})
	require.NoError(t, err)
	require.Equal(t, message.StatusSent, m.Status)

	stored, err := repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, message.StatusSent, stored.Status)
}

func TestGetConversationMarksReadAndPublishesReceipt(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewMessageService(repo, pub)
	ctx := context.Background()

	var sentIDs []uint64
	for _, c := range []string{"1", "2", "3"} {
		m, err := svc.SendMessage(ctx, "alice", SendMessageInput{RecipientID: "bob", Content: c})
		require.NoError(t, err)
		sentIDs = append(sentIDs, m.ID)
	}
	pub.published = nil

	msgs, err := svc.GetConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		require.Equal(t, message.StatusRead, m.Status)
	}

	// 回执发给原发送方，messageIds 与实际变更完全一致
	require.Len(t, pub.published, 1)
	require.Equal(t, "notifications.alice", pub.published[0].routingKey)

	var env struct {
		Type    string             `json:"type"`
		Payload ReadReceiptPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.published[0].body, &env))
	require.Equal(t, EnvelopeMessagesRead, env.Type)
	require.Equal(t, "bob", env.Payload.ReaderID)
	require.Equal(t, "alice", env.Payload.RecipientID)
	require.ElementsMatch(t, sentIDs, env.Payload.MessageIDs)

	// 第二次拉取没有新的未读，不再发回执
	_, err = svc.GetConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
}

func TestGetConversationRequiresOther(t *testing.T) {
	svc := NewMessageService(newFakeRepo(), &fakePublisher{})
	_, err := svc.GetConversation(context.Background(), "bob", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetConversationReceiptPublishFailureTolerated(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewMessageService(repo, pub)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "alice", SendMessageInput{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	pub.fail = true
	msgs, err := svc.GetConversation(ctx, "bob", "alice")
	// 已读状态已提交，发布失败不影响结果
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, message.StatusRead, msgs[0].Status)
}

func TestToggleReaction(t *testing.T) {
	repo := newFakeRepo()
	svc := NewMessageService(repo, &fakePublisher{})
	ctx := context.Background()

	m, err := svc.SendMessage(ctx, "alice", SendMessageInput{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	// 加表情
	got, err := svc.ToggleReaction(ctx, "bob", m.ID, "👍")
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	require.Equal(t, []string{"bob"}, got.Reactions[0].UserIDs)

	// 第二个人加同一个表情
	got, err = svc.ToggleReaction(ctx, "alice", m.ID, "👍")
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "alice"}, got.Reactions[0].UserIDs)

	// 再点一次取消，取消到空时整条删除
	got, err = svc.ToggleReaction(ctx, "bob", m.ID, "👍")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, got.Reactions[0].UserIDs)
	got, err = svc.ToggleReaction(ctx, "alice", m.ID, "👍")
	require.NoError(t, err)
	require.Empty(t, got.Reactions)

	// 非参与方无权操作
	_, err = svc.ToggleReaction(ctx, "carol", m.ID, "👍")
	require.ErrorIs(t, err, ErrForbidden)

	// 消息不存在
	_, err = svc.ToggleReaction(ctx, "bob", 9999, "👍")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestToggleFavorite(t *testing.T) {
	repo := newFakeRepo()
	svc := NewMessageService(repo, &fakePublisher{})
	ctx := context.Background()

	m, err := svc.SendMessage(ctx, "alice", SendMessageInput{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	got, err := svc.ToggleFavorite(ctx, "alice", m.ID)
	require.NoError(t, err)
	require.True(t, got.IsFavorited)

	got, err = svc.ToggleFavorite(ctx, "bob", m.ID)
	require.NoError(t, err)
	require.False(t, got.IsFavorited)

	_, err = svc.ToggleFavorite(ctx, "carol", m.ID)
	require.ErrorIs(t, err, ErrForbidden)
}
