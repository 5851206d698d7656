package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client 一条活跃的 WebSocket 连接。投递走带缓冲的 send 通道，
// 由 writePump 单 goroutine 串行写出，避免并发写同一个连接。
type Client struct {
	UserID string

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient 包装一条已升级的连接
func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Deliver 非阻塞投递一帧原始 JSON。连接已关闭或写缓冲打满时
// 返回 false，调用方按"不在线"处理。
func (c *Client) Deliver(body []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- body:
		return true
	default:
		return false
	}
}

// Close 幂等关闭连接
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump 串行写出，写失败即认为连接已死
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				zap.L().Debug("websocket write failed", zap.String("user", c.UserID), zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

// readPump 只为感知对端关闭/出错，收到的数据直接丢弃
func (c *Client) readPump() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.Close()
			return
		}
	}
}
