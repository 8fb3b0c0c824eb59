package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      string                 `json:"type"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	UserID   string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stop     sync.Once
	lastPing time.Time
}

// shutdown 通知写协程退出。send 通道永不关闭，推送方据此免于向已关闭通道发送。
func (c *Connection) shutdown() {
	c.stop.Do(func() { close(c.done) })
}

// Hub 管理所有在线用户的WebSocket连接，并充当应用内推送通道：
// 在线用户的告警推送直接走长连接，无需经过第三方推送网关。
type Hub struct {
	mu sync.RWMutex
	// 用户ID到连接的映射（一个用户可能有多个设备）
	userConns map[string]map[string]*Connection

	heartbeat time.Duration
	sendBuf   int

	ctx    context.Context
	cancel context.CancelFunc
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		userConns: make(map[string]map[string]*Connection),
		heartbeat: 30 * time.Second,
		sendBuf:   64,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	for _, conns := range h.userConns {
		for _, c := range conns {
			c.shutdown()
			_ = c.conn.Close()
		}
	}
	h.userConns = make(map[string]map[string]*Connection)
	h.mu.Unlock()
}

// Push implements the push transport: deliver to every live connection of
// the user. Returns an error when the user has no open connection so the
// dispatcher can record the failure.
func (h *Hub) Push(ctx context.Context, userID, title, body string, extras map[string]interface{}) error {
	msg := Message{
		Type:      "push",
		Title:     title,
		Body:      body,
		Data:      extras,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// 在锁内拷贝连接列表；注销方可能并发修改映射。
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.userConns[userID]))
	for _, c := range h.userConns[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return fmt.Errorf("user %s not connected", userID)
	}

	for _, c := range conns {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			logrus.WithField("conn", c.ID).Warn("websocket send buffer full, dropping push")
		}
	}
	return nil
}

// Online reports whether the user currently has a live connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.userConns {
		n += len(conns)
	}
	return n
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	if h.userConns[c.UserID] == nil {
		h.userConns[c.UserID] = make(map[string]*Connection)
	}
	h.userConns[c.UserID][c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	if conns := h.userConns[c.UserID]; conns != nil {
		if _, ok := conns[c.ID]; ok {
			delete(conns, c.ID)
			c.shutdown()
			if len(conns) == 0 {
				delete(h.userConns, c.UserID)
			}
		}
	}
	h.mu.Unlock()
}

// Serve upgrades the request and pumps messages until the peer goes away.
func (h *Hub) Serve(c *gin.Context, connID, userID string) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &Connection{
		ID:       connID,
		UserID:   userID,
		conn:     ws,
		send:     make(chan []byte, h.sendBuf),
		done:     make(chan struct{}),
		lastPing: time.Now(),
	}
	h.register(conn)

	go h.writePump(conn)
	h.readPump(conn)
}

func (h *Hub) writePump(c *Connection) {
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *Connection) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetPongHandler(func(string) error {
		c.lastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
