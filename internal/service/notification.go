package service

import (
	"context"

	"github.com/azureiya85/YouApp-Test/internal/datamodels/message"
)

// 通知信封只存在于发布和消费之间，从不落库。
const (
	EnvelopeNewMessage   = "NEW_MESSAGE"
	EnvelopeMessagesRead = "MESSAGES_READ"
)

// Envelope 经 MQ 和 WebSocket 透传的载体
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ReadReceiptPayload MESSAGES_READ 的载荷。RecipientID 冗余携带通知目标，
// 这样消费端不必依赖路由键反推收件人（路由键仅作兜底）。
type ReadReceiptPayload struct {
	ReaderID    string   `json:"readerId"`
	MessageIDs  []uint64 `json:"messageIds"`
	RecipientID string   `json:"recipientId"`
}

// NewMessageEnvelope NEW_MESSAGE 信封，载荷是完整消息（自带 recipientId）
func NewMessageEnvelope(m *message.Message) Envelope {
	return Envelope{Type: EnvelopeNewMessage, Payload: m}
}

// ReadReceiptEnvelope MESSAGES_READ 信封
func ReadReceiptEnvelope(readerID, recipientID string, ids []uint64) Envelope {
	return Envelope{
		Type: EnvelopeMessagesRead,
		Payload: ReadReceiptPayload{
			ReaderID:    readerID,
			MessageIDs:  ids,
			RecipientID: recipientID,
		},
	}
}

// Publisher 通知发布接口，由 infra/mq 的 Publisher 实现
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}
