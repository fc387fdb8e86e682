// internal/service/loyalty/interfaces/push_hub.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 跨域由网关控制，这里放行
		return true
	},
}

// PushHub 维护所有活跃的 WebSocket 连接并按主题广播状态流转事件。
// 终端订阅 "store:<storeId>"，顾客订阅 "customer:<customerId>"。
// 推送只是降低感知延迟的补充通道：连接断开、消息丢失都不影响正确性，
// 轮询接口仍然是权威同步通道。
type PushHub struct {
	clients    map[string]map[*pushClient]struct{} // topic -> clients
	register   chan *pushClient
	unregister chan *pushClient
	broadcast  chan pushMessage
	lock       sync.RWMutex
}

type pushMessage struct {
	topic   string
	payload []byte
}

type pushClient struct {
	hub   *PushHub
	conn  *websocket.Conn
	topic string
	send  chan []byte
}

// NewPushHub 创建推送中心。
func NewPushHub() *PushHub {
	return &PushHub{
		clients:    make(map[string]map[*pushClient]struct{}),
		register:   make(chan *pushClient),
		unregister: make(chan *pushClient),
		broadcast:  make(chan pushMessage, 256),
	}
}

// Run 是推送中心的事件循环，随 ctx 取消退出。
func (h *PushHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			if h.clients[client.topic] == nil {
				h.clients[client.topic] = make(map[*pushClient]struct{})
			}
			h.clients[client.topic][client] = struct{}{}
			h.lock.Unlock()
		case client := <-h.unregister:
			h.lock.Lock()
			if set, ok := h.clients[client.topic]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.clients, client.topic)
					}
				}
			}
			h.lock.Unlock()
		case msg := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients[msg.topic] {
				select {
				case client.send <- msg.payload:
				default:
					// 消费不过来的慢连接直接放弃这条消息
				}
			}
			h.lock.RUnlock()
		case <-ctx.Done():
			return
		}
	}
}

// NotifyStatusChanged 实现 port.StatusNotifier：事件同时推给店铺主题
// 和顾客主题。
func (h *PushHub) NotifyStatusChanged(ctx context.Context, event *domain.StatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.StoreID != "" {
		h.broadcast <- pushMessage{topic: "store:" + event.StoreID, payload: payload}
	}
	if event.CustomerID != "" {
		h.broadcast <- pushMessage{topic: "customer:" + event.CustomerID, payload: payload}
	}
	return nil
}

// NotifyCouponIssued 实现 port.StatusNotifier：发券事件推给顾客主题，
// 顾客端钱包即时刷新。
func (h *PushHub) NotifyCouponIssued(ctx context.Context, event *domain.CouponIssued) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- pushMessage{topic: "customer:" + event.CustomerID, payload: payload}
	return nil
}

// ServeWS 处理 WebSocket 升级请求：GET /ws?topic=store:<id>
func (h *PushHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		http.Error(w, "missing topic", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &pushClient{hub: h, conn: conn, topic: topic, send: make(chan []byte, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *pushClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		// 客户端不上行业务消息，读循环只用于感知断连
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *pushClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
