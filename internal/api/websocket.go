// websocket.go - Live orchestrator event stream
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/cardscan-intake/gateway/internal/batch"
)

// WebSocket message types pushed to clients
const (
	MsgTypeConnected = "connected"
	MsgTypeEvent     = "event"
)

// WSMessage is the frame envelope on the event socket.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// EventsHandler streams orchestrator events to connected clients.
type EventsHandler struct {
	manager  *batch.Manager
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a new WebSocket event handler
func NewEventsHandler(m *batch.Manager) *EventsHandler {
	return &EventsHandler{
		manager: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 32 * 1024,
		},
	}
}

// HandleEvents upgrades the connection and forwards every orchestrator event
// until the client goes away. A fresh subscriber first receives the current
// batch and record snapshots so it never starts blind.
func (eh *EventsHandler) HandleEvents(c echo.Context) error {
	ws, err := eh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Println("[WebSocket] Client connected for events")

	events, cancel := eh.manager.Subscribe()
	defer cancel()

	eh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})
	if snap := eh.manager.Snapshot(); snap != nil {
		eh.sendEvent(ws, batch.Event{Type: batch.EventBatchUpdated, Batch: snap})
		eh.sendEvent(ws, batch.Event{Type: batch.EventRecordsUpdated, Records: eh.manager.Records()})
	}

	// Reader goroutine only watches for the peer closing the socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					fmt.Printf("[WebSocket] Connection error: %v\n", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			fmt.Println("[WebSocket] Client disconnected")
			return nil
		case ev := <-events:
			if !eh.sendEvent(ws, ev) {
				return nil
			}
		}
	}
}

func (eh *EventsHandler) sendEvent(ws *websocket.Conn, ev batch.Event) bool {
	return eh.sendMessage(ws, WSMessage{
		Type:      MsgTypeEvent,
		Payload:   mustJSON(ev),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (eh *EventsHandler) sendMessage(ws *websocket.Conn, msg WSMessage) bool {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
		return false
	}
	return true
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
