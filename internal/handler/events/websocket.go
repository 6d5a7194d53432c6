package events

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/events"
	chatService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// EventState is sent once on connect with the full session snapshot.
const EventState = "state"

// WebSocketHandler 事件流WebSocket处理器
type WebSocketHandler struct {
	hub      *events.Hub
	manager  *chatService.Manager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建事件流处理器
func NewWebSocketHandler(hub *events.Hub, manager *chatService.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册事件流路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
}

// handleWebSocket 推送会话事件，直到客户端断开
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	slog.Info("event stream connected", "subscriber", sub.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// 写入失败时关闭连接，让读循环退出
		defer conn.Close()
		h.writeLoop(ctx, conn, sub)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("event stream read error", "subscriber", sub.ID, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// 输入框的按键活动也可以经由事件流上报
		if msg.Type == "activity" {
			h.manager.RecordActivity()
		}
	}

	cancel()
	<-done
	slog.Info("event stream closed", "subscriber", sub.ID)
}

// writeLoop 是连接唯一的写入者，负责事件推送与心跳
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *events.Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	initial := events.Event{
		Type:      EventState,
		Data:      h.manager.Snapshot(),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := writeJSON(conn, initial); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeJSON(conn, evt); err != nil {
				slog.Warn("event stream write failed", "subscriber", sub.ID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
