package providers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"reminder-service/internal/delivery"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// maxConnsPerUser caps open sockets per recipient.
const maxConnsPerUser = 10

// Hub manages WebSocket connections for users.
type Hub struct {
	connections map[string]map[*websocket.Conn]bool // userID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{connections: make(map[string]map[*websocket.Conn]bool), logger: logger}
}

// AddConnection registers conn and reports false when the user is at the cap.
func (h *Hub) AddConnection(userID string, conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[*websocket.Conn]bool)
	}
	if len(h.connections[userID]) >= maxConnsPerUser {
		h.logger.Warnf("Max connections reached for user %s", userID)
		return false
	}
	h.connections[userID][conn] = true
	h.logger.Infof("Added WebSocket connection for user %s (total: %d)", userID, len(h.connections[userID]))
	return true
}

// RemoveConnection removes a WebSocket connection.
func (h *Hub) RemoveConnection(userID string, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
		h.logger.Infof("Removed WebSocket connection for user %s (remaining: %d)", userID, len(conns))
	}
}

// Connected reports whether the user has at least one open socket.
func (h *Hub) Connected(userID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[userID]) > 0
}

// SendToUser writes message to every connection of a user and returns how
// many accepted it. Failed connections are dropped.
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[userID]
	if !exists {
		return 0
	}
	sent := 0
	for conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send WebSocket message to user %s: %v", userID, err)
			delete(conns, conn)
			_ = conn.Close()
			continue
		}
		sent++
	}
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
	return sent
}

// InApp is the modal-style real-time channel backed by the Hub.
type InApp struct {
	hub *Hub
}

func NewInApp(hub *Hub) *InApp {
	return &InApp{hub: hub}
}

type inAppMessage struct {
	NotificationID string         `json:"notification_id"`
	IssueKey       string         `json:"issue_key"`
	Type           string         `json:"type"`
	Urgency        models.Urgency `json:"urgency"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	NextSteps      []string       `json:"next_steps,omitempty"`
}

func (a *InApp) Name() models.Channel  { return models.ChannelInApp }
func (a *InApp) Style() delivery.Style { return delivery.StyleModal }
func (a *InApp) IsAvailable() bool     { return a.hub != nil }

// Validate accepts only recipients with an open socket.
func (a *InApp) Validate(n models.Notification, _ models.UserPreferences) bool {
	return a.hub.Connected(n.RecipientID)
}

func (a *InApp) Deliver(_ context.Context, n models.Notification, _ models.UserPreferences) models.DeliveryResult {
	res := models.DeliveryResult{Channel: models.ChannelInApp, Timestamp: time.Now()}
	payload, err := json.Marshal(inAppMessage{
		NotificationID: n.ID,
		IssueKey:       n.IssueKey,
		Type:           string(n.Type),
		Urgency:        n.Urgency,
		Title:          Title(n),
		Body:           Body(n),
		NextSteps:      n.NextSteps,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if a.hub.SendToUser(n.RecipientID, payload) == 0 {
		res.Error = "no open connection accepted the message"
		return res
	}
	res.Success = true
	res.DeliveryID = n.ID
	return res
}
