package gateway

import "sync"

// Registry 在线连接表：userID -> 当前活跃连接。每个用户最多一条，
// 同一用户再次连接会静默顶掉旧连接（旧连接自生自灭）。
// 网关重启后表是空的，客户端需要重连。
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry 创建空的连接表
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register 登记连接，已有连接时直接替换
func (r *Registry) Register(userID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[userID] = c
}

// Unregister 移除连接。带连接指针比对：被顶掉的旧连接断开时
// 不能误删后来者的登记。
func (r *Registry) Unregister(userID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[userID]; ok && cur == c {
		delete(r.clients, userID)
	}
}

// Lookup 查找在线连接
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// Count 当前在线连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
