package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/azureiya85/YouApp-Test/internal/datamodels/message"
	"github.com/azureiya85/YouApp-Test/internal/infra/mq"
)

// SendMessageInput POST /messages 的请求体
type SendMessageInput struct {
	RecipientID string               `json:"recipientId"`
	Content     string               `json:"content"`
	ReplyTo     *uint64              `json:"replyTo,omitempty"`
	Attachment  *message.Attachment  `json:"attachment,omitempty"`
	LinkPreview *message.LinkPreview `json:"linkPreview,omitempty"`
}

// MessageService 消息收发服务。写库成功是硬性要求，MQ 发布失败只降级：
// 消息已持久化，收件人下次拉历史时能看到，只是丢了一次实时推送。
type MessageService struct {
	repo message.Repository
	pub  Publisher
}

// NewMessageService 创建消息服务
func NewMessageService(repo message.Repository, pub Publisher) *MessageService {
	return &MessageService{repo: repo, pub: pub}
}

// SendMessage 校验、落库、再发 NEW_MESSAGE 通知。
// 落库失败整个操作失败且不发布任何通知；发布失败不影响返回结果。
func (s *MessageService) SendMessage(ctx context.Context, senderID string, in SendMessageInput) (*message.Message, error) {
	if in.RecipientID == "" {
		return nil, fmt.Errorf("%w: recipientId 不能为空", ErrInvalidInput)
	}
	if in.RecipientID == senderID {
		return nil, fmt.Errorf("%w: 不能给自己发消息", ErrInvalidInput)
	}
	// 纯附件消息允许空正文，否则正文必填
	if in.Content == "" && in.Attachment == nil {
		return nil, fmt.Errorf("%w: content 不能为空", ErrInvalidInput)
	}
	if in.Attachment != nil && in.Attachment.Type != "image" {
		return nil, fmt.Errorf("%w: 附件类型仅支持 image", ErrInvalidInput)
	}

	m := &message.Message{
		SenderID:    senderID,
		RecipientID: in.RecipientID,
		Content:     in.Content,
		ReplyTo:     in.ReplyTo,
		Attachment:  in.Attachment,
		LinkPreview: in.LinkPreview,
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}
	GetMonitor().RecordMessageSent()

	s.publish(ctx, mq.RoutingKey(m.RecipientID), NewMessageEnvelope(m))
	return m, nil
}

// GetConversation 拉取会话历史并把对方发来的未读消息置为已读。
// 有消息被置读时向原发送方发 MESSAGES_READ 回执，发布失败只记日志。
func (s *MessageService) GetConversation(ctx context.Context, userID, otherID string) ([]*message.Message, error) {
	if otherID == "" {
		return nil, fmt.Errorf("%w: with 参数不能为空", ErrInvalidInput)
	}

	msgs, err := s.repo.FindConversation(ctx, userID, otherID)
	if err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}

	n, ids, err := s.repo.MarkIncomingAsRead(ctx, otherID, userID)
	if err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}
	if n == 0 {
		return msgs, nil
	}

	// 返回结果要体现刚刚提交的状态变更
	changed := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		changed[id] = struct{}{}
	}
	for _, m := range msgs {
		if _, ok := changed[m.ID]; ok {
			m.Status = message.StatusRead
		}
	}

	GetMonitor().RecordReadReceipt()
	s.publish(ctx, mq.RoutingKey(otherID), ReadReceiptEnvelope(userID, otherID, ids))
	return msgs, nil
}

// ToggleReaction 给消息加/取消一个表情回应，仅会话参与方可操作。
// 同一用户对同一表情再点一次视为取消，计数清零的表情整条删掉。
func (s *MessageService) ToggleReaction(ctx context.Context, userID string, messageID uint64, emoji string) (*message.Message, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji 不能为空", ErrInvalidInput)
	}
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: 消息不存在", ErrNotFound)
	}
	if !m.Involves(userID) {
		return nil, ErrForbidden
	}

	m.Reactions = toggleReaction(m.Reactions, emoji, userID)
	if err := s.repo.Update(ctx, m); err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}
	return m, nil
}

// ToggleFavorite 收藏/取消收藏，标记独立于消息状态
func (s *MessageService) ToggleFavorite(ctx context.Context, userID string, messageID uint64) (*message.Message, error) {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: 消息不存在", ErrNotFound)
	}
	if !m.Involves(userID) {
		return nil, ErrForbidden
	}

	m.IsFavorited = !m.IsFavorited
	if err := s.repo.Update(ctx, m); err != nil {
		GetMonitor().RecordDBError()
		return nil, err
	}
	return m, nil
}

// publish 序列化信封并发布，任何失败都只降级，不向上传播
func (s *MessageService) publish(ctx context.Context, routingKey string, env Envelope) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		zap.L().Error("marshal envelope failed", zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, routingKey, body); err != nil {
		GetMonitor().RecordMQError()
		zap.L().Warn("publish notification failed, live delivery forfeited",
			zap.String("routing_key", routingKey),
			zap.String("type", env.Type),
			zap.Error(err))
	}
}

func toggleReaction(reactions []message.Reaction, emoji, userID string) []message.Reaction {
	for i := range reactions {
		if reactions[i].Emoji != emoji {
			continue
		}
		for j, uid := range reactions[i].UserIDs {
			if uid == userID {
				// 已点过，取消
				reactions[i].UserIDs = append(reactions[i].UserIDs[:j], reactions[i].UserIDs[j+1:]...)
				if len(reactions[i].UserIDs) == 0 {
					return append(reactions[:i], reactions[i+1:]...)
				}
				return reactions
			}
		}
		reactions[i].UserIDs = append(reactions[i].UserIDs, userID)
		return reactions
	}
	return append(reactions, message.Reaction{Emoji: emoji, UserIDs: []string{userID}})
}
