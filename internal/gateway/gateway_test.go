package gateway

import (
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

// fakeAck 记录确认动作
type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func delivery(ack *fakeAck, routingKey string, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, RoutingKey: routingKey, Body: body}
}

func newMessageBody(t *testing.T, recipient, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"type": "NEW_MESSAGE",
		"payload": map[string]any{
			"id":          1,
			"senderId":    "alice",
			"recipientId": recipient,
			"content":     content,
			"status":      "sent",
		},
	})
	require.NoError(t, err)
	return b
}

func TestHandleDeliveryForwardsVerbatim(t *testing.T) {
	g := NewGateway()
	bob := NewClient("bob", nil)
	g.registry.Register("bob", bob)

	ack := &fakeAck{}
	body := newMessageBody(t, "bob", "hi")
	g.handleDelivery(delivery(ack, "notifications.bob", body))

	require.True(t, ack.acked)
	require.False(t, ack.nacked)

	select {
	case got := <-bob.send:
		// 原样透传，一字节都不动
		require.Equal(t, body, got)
	default:
		t.Fatal("expected live delivery to bob")
	}
}

func TestHandleDeliveryAbsentRecipientStillAcks(t *testing.T) {
	g := NewGateway()

	ack := &fakeAck{}
	g.handleDelivery(delivery(ack, "notifications.bob", newMessageBody(t, "bob", "hi")))

	// 不在线也算处理完毕，没有重试、没有离线队列
	require.True(t, ack.acked)
	require.False(t, ack.nacked)
}

func TestHandleDeliveryMalformedNackNoRequeue(t *testing.T) {
	g := NewGateway()

	ack := &fakeAck{}
	g.handleDelivery(delivery(ack, "notifications.bob", []byte("{not json")))

	require.False(t, ack.acked)
	require.True(t, ack.nacked)
	require.False(t, ack.requeue)
}

func TestHandleDeliveryReadReceiptUsesPayloadTarget(t *testing.T) {
	g := NewGateway()
	alice := NewClient("alice", nil)
	g.registry.Register("alice", alice)

	body, err := json.Marshal(map[string]any{
		"type": "MESSAGES_READ",
		"payload": map[string]any{
			"readerId":    "bob",
			"messageIds":  []uint64{1, 2, 3},
			"recipientId": "alice",
		},
	})
	require.NoError(t, err)

	ack := &fakeAck{}
	// 路由键故意不匹配，验证载荷里的目标优先
	g.handleDelivery(delivery(ack, "notifications.someone-else", body))

	require.True(t, ack.acked)
	select {
	case got := <-alice.send:
		require.Equal(t, body, got)
	default:
		t.Fatal("expected read receipt delivered to alice")
	}
}

func TestHandleDeliveryFallsBackToRoutingKey(t *testing.T) {
	g := NewGateway()
	alice := NewClient("alice", nil)
	g.registry.Register("alice", alice)

	// 载荷没有目标字段，从路由键后缀兜底
	body := []byte(`{"type":"MESSAGES_READ","payload":{"readerId":"bob","messageIds":[7]}}`)
	ack := &fakeAck{}
	g.handleDelivery(delivery(ack, "notifications.alice", body))

	require.True(t, ack.acked)
	select {
	case got := <-alice.send:
		require.Equal(t, body, got)
	default:
		t.Fatal("expected delivery via routing key fallback")
	}
}

func TestHandleDeliveryNoTargetRejected(t *testing.T) {
	g := NewGateway()

	body := []byte(`{"type":"MESSAGES_READ","payload":{"readerId":"bob","messageIds":[7]}}`)
	ack := &fakeAck{}
	// 路由键前缀也不合法，彻底无法寻址
	g.handleDelivery(delivery(ack, "bogus.key", body))

	require.False(t, ack.acked)
	require.True(t, ack.nacked)
	require.False(t, ack.requeue)
}

func TestClientDeliverAfterCloseFails(t *testing.T) {
	c := NewClient("bob", nil)
	require.True(t, c.Deliver([]byte("a")))

	// Close 后投递静默失败，按不在线处理
	c.Close()
	require.False(t, c.Deliver([]byte("b")))
}
