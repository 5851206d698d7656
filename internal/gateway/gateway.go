package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/azureiya85/YouApp-Test/internal/infra/mq"
	"github.com/azureiya85/YouApp-Test/internal/service"
)

// Gateway 维护在线连接表并消费通知队列。连接处理和消费循环
// 并发运行，连接表是两者之间唯一的共享状态。
type Gateway struct {
	registry *Registry
	upgrader websocket.Upgrader
}

// NewGateway 创建网关
func NewGateway() *Gateway {
	return &Gateway{
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Registry 暴露连接表（统计接口用）
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// HandleWS 处理 WebSocket 接入。必须带 userId 参数，缺失直接拒绝，
// 不做任何登记。升级成功后登记连接并启动读写泵。
func (g *Gateway) HandleWS(ctx iris.Context) {
	userID := ctx.URLParam("userId")
	if userID == "" {
		ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "userId query parameter is required"})
		return
	}

	conn, err := g.upgrader.Upgrade(ctx.ResponseWriter().Naive(), ctx.Request(), nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := NewClient(userID, conn)
	g.registry.Register(userID, c)
	zap.L().Info("client connected", zap.String("user", userID), zap.Int("online", g.registry.Count()))

	go c.writePump()
	go func() {
		c.readPump()
		g.registry.Unregister(userID, c)
		zap.L().Info("client disconnected", zap.String("user", userID), zap.Int("online", g.registry.Count()))
	}()
}

// RunConsumer 网关的消费主循环，进程存活期间持续运行。
// channel 被关闭（连接断开）时返回，由调用方决定退出还是重连。
func (g *Gateway) RunConsumer(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := mq.DeclareTopology(ch); err != nil {
		return err
	}

	// 手动确认模式（auto-ack=false）
	msgs, err := ch.Consume(mq.NotificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	zap.L().Info("gateway consumer started, waiting for notifications")
	for d := range msgs {
		g.handleDelivery(d)
	}
	return nil
}

// envelopeHeader 只解出寻址需要的字段，通知体本身原样透传
type envelopeHeader struct {
	Type    string `json:"type"`
	Payload struct {
		RecipientID string `json:"recipientId"`
	} `json:"payload"`
}

// handleDelivery 处理一条队列消息。确认纪律：投递成功和收件人不在线
// 都 Ack（都算处理完毕）；只有解析失败的消息 Nack 且不重回队列，
// 避免毒消息循环。
func (g *Gateway) handleDelivery(d amqp.Delivery) {
	var env envelopeHeader
	if err := json.Unmarshal(d.Body, &env); err != nil || env.Type == "" {
		zap.L().Warn("malformed envelope rejected", zap.Error(err))
		service.GetMonitor().RecordConsumerReject()
		_ = d.Nack(false, false)
		return
	}

	// 载荷里带目标则优先用，否则从路由键后缀兜底
	target := env.Payload.RecipientID
	if target == "" {
		target = mq.TargetFromRoutingKey(d.RoutingKey)
	}
	if target == "" {
		zap.L().Warn("envelope without addressable target rejected", zap.String("routing_key", d.RoutingKey))
		service.GetMonitor().RecordConsumerReject()
		_ = d.Nack(false, false)
		return
	}

	if c, ok := g.registry.Lookup(target); ok && c.Deliver(d.Body) {
		service.GetMonitor().RecordDeliveredLive()
	} else {
		// 不在线就丢掉实时推送，消息本身已经在库里
		service.GetMonitor().RecordDroppedOffline()
	}
	_ = d.Ack(false)
}
