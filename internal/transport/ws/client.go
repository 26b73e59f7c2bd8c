package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/dkolar7/paperback/internal/domain"
	"github.com/dkolar7/paperback/internal/service"
	"github.com/dkolar7/paperback/pkg/validator"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendBufSize    = 256
	requestTimeout = 15 * time.Second
)

// Client represents a single authenticated WebSocket session.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	user          domain.PublicUser
	chat          *service.ChatService
	conversations *service.ConversationService
	logger        *zap.Logger

	// rooms is this session's joined-room set; guarded by hub.mu.
	rooms map[uuid.UUID]struct{}

	mu     sync.RWMutex
	closed bool
	send   chan []byte
	done   chan struct{}
}

func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	user domain.PublicUser,
	chat *service.ChatService,
	conversations *service.ConversationService,
	logger *zap.Logger,
) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		user:          user,
		chat:          chat,
		conversations: conversations,
		logger:        logger.With(zap.String("user_id", user.ID.String())),
		rooms:         make(map[uuid.UUID]struct{}),
		send:          make(chan []byte, sendBufSize),
		done:          make(chan struct{}),
	}
}

// enqueue offers data to the write pump without blocking. It returns
// false when the session is closed or its buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the session's channels exactly once. Safe to call from the
// hub while pumps are still running.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.send)
}

// ReadPump reads events from the WebSocket and dispatches them until the
// connection dies, then unregisters the session.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("client disconnected")
			} else {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes queued events to the WebSocket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Debug("ping error", zap.Error(err))
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeJoinRoom:
		var p RoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendFailure("INVALID_PAYLOAD", "invalid join_room payload")
			return
		}
		c.handleJoinRoom(p.ConversationID)

	case EventTypeLeaveRoom:
		var p RoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendFailure("INVALID_PAYLOAD", "invalid leave_room payload")
			return
		}
		c.hub.LeaveRoom(c, p.ConversationID)

	case EventTypeSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendFailure("INVALID_PAYLOAD", "invalid send_message payload")
			return
		}
		c.handleSendMessage(p)

	case EventTypeTypingStart, EventTypeTypingStop:
		var p RoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendFailure("INVALID_PAYLOAD", "conversation_id required for typing events")
			return
		}
		c.handleTyping(p.ConversationID, event.Type == EventTypeTypingStart)

	case EventTypePing:
		c.sendPong()

	default:
		c.sendFailure("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// handleJoinRoom subscribes the session to a conversation after a
// participant check. Non-participants are rejected silently: stale
// client state routinely triggers this and it must not leak anything.
func (c *Client) handleJoinRoom(conversationID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ok, err := c.conversations.IsParticipant(ctx, c.user.ID, conversationID)
	if err != nil {
		c.logger.Warn("participant check failed", zap.Error(err))
		return
	}
	if !ok {
		c.logger.Debug("join_room rejected",
			zap.String("conversation_id", conversationID.String()))
		return
	}

	c.hub.JoinRoom(c, conversationID)

	evt, err := NewEvent(EventTypeRoomJoined, &conversationID, RoomPayload{ConversationID: conversationID})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

// handleSendMessage runs the delivery pipeline and acknowledges the
// result to this session only, echoing the client's temp_id so it can
// reconcile its optimistic local message with the stored one. The
// temp_id never leaves this session and is never stored.
func (c *Client) handleSendMessage(p SendMessagePayload) {
	if errs := validator.ValidateMessageContent(p.Content); errs.HasErrors() {
		c.sendFailure("INVALID_MESSAGE", errs["content"])
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	msg, _, err := c.chat.Send(ctx, c.user.ID, service.SendInput{
		RecipientID: p.RecipientID,
		Type:        p.Type,
		Content:     p.Content,
		Attachment:  p.Attachment,
	})
	if err != nil {
		kind, detail := sendFailureKind(err)
		c.logger.Debug("send failed", zap.String("kind", kind), zap.Error(err))
		c.sendFailure(kind, detail)
		return
	}

	evt, err := NewEvent(EventTypeSendAcknowledged, &msg.ConversationID, AckPayload{
		TempID:  p.TempID,
		Message: *msg,
	})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}

// handleTyping records or clears the typing marker and broadcasts the
// transition to the other room members. Non-participants are ignored
// silently; refreshes of a live marker broadcast nothing.
func (c *Client) handleTyping(conversationID uuid.UUID, start bool) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ok, err := c.conversations.IsParticipant(ctx, c.user.ID, conversationID)
	if err != nil || !ok {
		return
	}

	if start {
		if c.hub.StartTyping(c, conversationID) {
			c.hub.broadcastTypingChanged(c.user, conversationID, true, c)
		}
		return
	}
	if c.hub.StopTyping(c, conversationID) {
		c.hub.broadcastTypingChanged(c.user, conversationID, false, c)
	}
}

func sendFailureKind(err error) (kind, detail string) {
	switch {
	case errors.Is(err, service.ErrBlocked):
		return "BLOCKED", "messaging is blocked between these users"
	case errors.Is(err, service.ErrRecipientNotFound):
		return "RECIPIENT_NOT_FOUND", "recipient not found"
	case errors.Is(err, service.ErrCannotMessageSelf):
		return "CANNOT_MESSAGE_SELF", "cannot message yourself"
	case errors.Is(err, service.ErrInvalidMessageType):
		return "INVALID_MESSAGE", "invalid message type"
	case errors.Is(err, service.ErrEmptyMessage):
		return "INVALID_MESSAGE", "message has no content or attachment"
	default:
		return "PERSISTENCE_FAILED", "message could not be stored"
	}
}

func (c *Client) sendEvent(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong, Timestamp: time.Now().Unix()})
	c.enqueue(data)
}

func (c *Client) sendFailure(kind, detail string) {
	evt, err := NewEvent(EventTypeOperationFailed, nil, ErrorPayload{Kind: kind, Detail: detail})
	if err != nil {
		return
	}
	c.sendEvent(evt)
}
