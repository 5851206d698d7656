package service

import (
	"sync"
	"time"
)

// Monitor 监控服务，用于统计错误和投递指标
type Monitor struct {
	mu sync.RWMutex

	// 错误统计
	MQErrors        int64
	DBErrors        int64
	ConsumerRejects int64

	// 投递统计
	MessagesSent   int64
	ReadReceipts   int64
	DeliveredLive  int64
	DroppedOffline int64

	// 时间统计
	LastMQError  time.Time
	LastDBError  time.Time
	LastSentTime time.Time
	LastDelivery time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// RecordMQError 记录MQ错误
func (m *Monitor) RecordMQError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MQErrors++
	m.LastMQError = time.Now()
}

// RecordDBError 记录数据库错误
func (m *Monitor) RecordDBError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBErrors++
	m.LastDBError = time.Now()
}

// RecordConsumerReject 记录消费端丢弃的坏消息
func (m *Monitor) RecordConsumerReject() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsumerRejects++
}

// RecordMessageSent 记录成功落库的消息
func (m *Monitor) RecordMessageSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
	m.LastSentTime = time.Now()
}

// RecordReadReceipt 记录一次已读回执发布
func (m *Monitor) RecordReadReceipt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadReceipts++
}

// RecordDeliveredLive 记录一次在线实时投递
func (m *Monitor) RecordDeliveredLive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveredLive++
	m.LastDelivery = time.Now()
}

// RecordDroppedOffline 记录收件人不在线被丢弃的通知
func (m *Monitor) RecordDroppedOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DroppedOffline++
}

// Snapshot 返回当前计数的拷贝，给 /api/stats 用
func (m *Monitor) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{
		"messages_sent":    m.MessagesSent,
		"read_receipts":    m.ReadReceipts,
		"delivered_live":   m.DeliveredLive,
		"dropped_offline":  m.DroppedOffline,
		"mq_errors":        m.MQErrors,
		"db_errors":        m.DBErrors,
		"consumer_rejects": m.ConsumerRejects,
	}
}
