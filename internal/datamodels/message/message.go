package message

import (
	"context"
	"time"
)

// Status 消息状态。sending 只存在于客户端乐观更新，failed 预留给
// 投递层，服务端落库的消息只会是 sent / read。
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusRead    Status = "read"
	StatusFailed  Status = "failed"
)

// Reaction 表情回应，userIds 是集合（不重复），清空后整条删除
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"userIds"`
}

// Attachment 附件，目前只支持图片
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// LinkPreview 链接预览，由发送方生成，服务端不做校验
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Message 私聊消息模型。ID 和 Timestamp 由存储层统一赋值。
type Message struct {
	ID          uint64       `gorm:"primaryKey" json:"id"`
	SenderID    string       `gorm:"size:36;index:idx_pair;not null" json:"senderId"`
	RecipientID string       `gorm:"size:36;index:idx_pair;not null" json:"recipientId"`
	Content     string       `gorm:"size:2048" json:"content"`
	Timestamp   time.Time    `gorm:"index" json:"timestamp"`
	Status      Status       `gorm:"size:16;index;not null" json:"status"`
	ReplyTo     *uint64      `gorm:"index" json:"replyTo,omitempty"` // 允许悬空引用，由调用方兜底
	Reactions   []Reaction   `gorm:"serializer:json" json:"reactions,omitempty"`
	IsFavorited bool         `json:"isFavorited"`
	Attachment  *Attachment  `gorm:"serializer:json" json:"attachment,omitempty"`
	LinkPreview *LinkPreview `gorm:"serializer:json" json:"linkPreview,omitempty"`
}

// Involves 判断某用户是否为这条消息的参与方
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// Repository 消息仓储接口
type Repository interface {
	// Insert 赋 ID 和服务端时间戳，以 sent 状态落库
	Insert(ctx context.Context, m *Message) error
	// FindConversation 返回两人之间的全部消息，按时间升序，同一时刻按插入顺序
	FindConversation(ctx context.Context, userA, userB string) ([]*Message, error)
	// MarkIncomingAsRead 把 fromUser 发给 toUser 的所有 sent 消息置为 read，
	// 返回实际变更的条数和消息 ID，已读的不会重复计入
	MarkIncomingAsRead(ctx context.Context, fromUser, toUser string) (int64, []uint64, error)
	GetByID(ctx context.Context, id uint64) (*Message, error)
	Update(ctx context.Context, m *Message) error
}
