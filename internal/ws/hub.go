package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/giga89/memento-legacy/internal/metrics"
)

// Event 推送给在线会话的开关事件，前端据此即时刷新倒计时，
// 不必等下一次 /api/status 轮询。
type Event struct {
	Type         string `json:"type"`
	TimeLeft     int64  `json:"time_left"`
	IsSimulation bool   `json:"is_simulation"`
	Triggered    bool   `json:"triggered"`
}

// 事件类型。
const (
	EventHeartbeat  = "heartbeat"
	EventSimulation = "simulation"
	EventTriggered  = "triggered"
	EventReset      = "reset"
)

// Hub 管理用户级别的会话组，实现延迟创建与并发安全。
// 同一账号可能在多个标签页/设备登录，事件要广播给该账号的所有会话。
type Hub struct {
	mu    sync.RWMutex
	users map[uint]*UserHub
}

func NewHub() *Hub { return &Hub{users: make(map[uint]*UserHub)} }

// GetUser 若该用户的会话组未初始化则懒加载一个 UserHub。
func (h *Hub) GetUser(userID uint) *UserHub {
	h.mu.RLock()
	uh := h.users[userID]
	h.mu.RUnlock()
	if uh != nil {
		return uh
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	uh = h.users[userID]
	if uh != nil {
		return uh
	}
	uh = NewUserHub(userID)
	h.users[userID] = uh
	go uh.run()
	return uh
}

// Publish 把事件广播给该用户的全部在线会话；无人在线时直接丢弃。
func (h *Hub) Publish(userID uint, evt Event) {
	h.mu.RLock()
	uh := h.users[userID]
	h.mu.RUnlock()
	if uh == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case uh.broadcast <- b:
	default:
	}
}

func (h *Hub) Online(userID uint) int {
	h.mu.RLock()
	uh := h.users[userID]
	h.mu.RUnlock()
	if uh == nil {
		return 0
	}
	return uh.Online()
}

type UserHub struct {
	userID     uint
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	online     int32
}

func NewUserHub(userID uint) *UserHub {
	return &UserHub{
		userID:     userID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

func (uh *UserHub) run() {
	for {
		select {
		case c := <-uh.register:
			uh.clients[c] = true
			atomic.StoreInt32(&uh.online, int32(len(uh.clients)))
			metrics.WsConnections.Inc()
		case c := <-uh.unregister:
			if _, ok := uh.clients[c]; ok {
				delete(uh.clients, c)
				close(c.send)
				atomic.StoreInt32(&uh.online, int32(len(uh.clients)))
				metrics.WsConnections.Dec()
			}
		case msg := <-uh.broadcast:
			for c := range uh.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(uh.clients, c)
					metrics.WsConnections.Dec()
				}
			}
			atomic.StoreInt32(&uh.online, int32(len(uh.clients)))
		}
	}
}

// Online 返回该用户当前在线会话数。
func (uh *UserHub) Online() int { return int(atomic.LoadInt32(&uh.online)) }
