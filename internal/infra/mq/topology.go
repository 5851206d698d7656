package mq

import (
	"context"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// 聊天通知拓扑：一个 direct 交换机 + 一个通配绑定的队列。
// 发布方用 notifications.<userId> 作为路由键，队列绑定 notifications.*，
// 所以网关会收到全量通知，最终寻址由消费端完成。
const (
	ChatExchange      = "chat_exchange"
	NotificationQueue = "notification_queue"

	routingKeyPrefix  = "notifications."
	routingKeyPattern = "notifications.*"
)

// RoutingKey 生成指向某个用户的路由键
func RoutingKey(userID string) string {
	return routingKeyPrefix + userID
}

// TargetFromRoutingKey 从路由键还原目标用户，不匹配时返回空串
func TargetFromRoutingKey(key string) string {
	if !strings.HasPrefix(key, routingKeyPrefix) {
		return ""
	}
	return strings.TrimPrefix(key, routingKeyPrefix)
}

// DeclareTopology 声明交换机、队列和绑定，发布端和消费端都会调用，幂等
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ChatExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(NotificationQueue, routingKeyPattern, ChatExchange, false, nil)
}

// Publisher 持有一个专用 channel 做发布。amqp 的 channel 不能并发使用，
// 这里用互斥锁串行化；每次发布带短超时，失败交给调用方降级处理。
type Publisher struct {
	mu      sync.Mutex
	ch      *amqp.Channel
	timeout time.Duration
}

// NewPublisher 开 channel 并声明拓扑
func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, timeout: 5 * time.Second}, nil
}

// Publish 以持久化模式发布一条 JSON 消息
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(
		ctx,
		ChatExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close 关闭发布 channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
