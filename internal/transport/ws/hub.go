package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkolar7/paperback/internal/domain"
)

type typingKey struct {
	userID         uuid.UUID
	conversationID uuid.UUID
}

// Hub is the session registry: the one piece of shared mutable state
// every connection touches. It tracks live sessions per user (a user may
// be connected from several devices), room membership per conversation,
// and ephemeral typing markers. One RWMutex guards all three.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Client]struct{}
	rooms    map[uuid.UUID]map[*Client]struct{}
	typing   map[typingKey]time.Time

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[*Client]struct{}),
		rooms:    make(map[uuid.UUID]map[*Client]struct{}),
		typing:   make(map[typingKey]time.Time),
		logger:   logger,
	}
}

// Register adds a live session. The user is reported online to everyone
// else only when this is their first session; extra devices are silent.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set := h.sessions[c.user.ID]
	first := len(set) == 0
	if set == nil {
		set = make(map[*Client]struct{})
		h.sessions[c.user.ID] = set
	}
	set[c] = struct{}{}
	var targets []*Client
	if first {
		targets = h.otherUsersClientsLocked(c.user.ID)
	}
	h.mu.Unlock()

	h.logger.Info("session registered",
		zap.String("user_id", c.user.ID.String()),
		zap.Bool("first_session", first))

	if first {
		h.emitPresence(targets, c.user, true)
	}
}

// Unregister removes a session, leaves its rooms, and — when it was the
// user's last session — reports the user offline and clears their typing
// markers so no permanent "is typing" ghost survives an unclean
// disconnect. Unknown sessions are a logged no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.sessions[c.user.ID]
	if !ok {
		h.mu.Unlock()
		h.logger.Debug("unregister of unknown session",
			zap.String("user_id", c.user.ID.String()))
		return
	}
	if _, member := set[c]; !member {
		h.mu.Unlock()
		h.logger.Debug("unregister of unknown session",
			zap.String("user_id", c.user.ID.String()))
		return
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(h.sessions, c.user.ID)
	}

	for convID := range c.rooms {
		h.removeFromRoomLocked(c, convID)
	}

	var stoppedRooms []uuid.UUID
	if last {
		for k := range h.typing {
			if k.userID == c.user.ID {
				delete(h.typing, k)
				stoppedRooms = append(stoppedRooms, k.conversationID)
			}
		}
	}

	var targets []*Client
	if last {
		targets = h.otherUsersClientsLocked(c.user.ID)
	}
	h.mu.Unlock()

	c.close()
	h.logger.Info("session unregistered",
		zap.String("user_id", c.user.ID.String()),
		zap.Bool("last_session", last))

	for _, convID := range stoppedRooms {
		h.broadcastTypingChanged(c.user, convID, false, nil)
	}
	if last {
		h.emitPresence(targets, c.user, false)
	}
}

// IsOnline reports whether the user has at least one live session.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// SessionCount returns the number of live sessions for a user.
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// JoinRoom subscribes the session to a conversation's broadcasts.
func (h *Hub) JoinRoom(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	c.rooms[conversationID] = struct{}{}
}

// LeaveRoom unsubscribes the session from a conversation's broadcasts.
func (h *Hub) LeaveRoom(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c, conversationID)
}

// InRoom reports whether the session is subscribed to the conversation.
func (h *Hub) InRoom(c *Client, conversationID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// BroadcastToRoom sends an event to every session joined to the
// conversation, optionally excluding one.
func (h *Hub) BroadcastToRoom(conversationID uuid.UUID, event *Event, exclude *Client) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshaling room event", zap.Error(err))
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != exclude {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		h.deliver(c, data)
	}
}

// SendToUser sends an event to every live session of one user.
func (h *Hub) SendToUser(userID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshaling user event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions[userID]))
	for c := range h.sessions[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// SendToUserOutsideRoom sends an event to the user's sessions that are
// connected but not subscribed to the conversation — the "active
// elsewhere in the app" notification path.
func (h *Hub) SendToUserOutsideRoom(userID, conversationID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshaling user event", zap.Error(err))
		return
	}

	h.mu.RLock()
	var targets []*Client
	room := h.rooms[conversationID]
	for c := range h.sessions[userID] {
		if _, joined := room[c]; !joined {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// StartTyping records or refreshes the typing marker for the session's
// user in a conversation. It returns true when the marker is new (or had
// gone stale), i.e. when a typing_changed broadcast is due; refreshes
// are silent.
func (h *Hub) StartTyping(c *Client, conversationID uuid.UUID) bool {
	key := typingKey{userID: c.user.ID, conversationID: conversationID}
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	prev, exists := h.typing[key]
	h.typing[key] = now
	return !exists || now.Sub(prev) > TypingExpiry
}

// StopTyping removes the marker. It returns true only if a marker
// existed, so a start/stop pair produces exactly one true and one false
// broadcast.
func (h *Hub) StopTyping(c *Client, conversationID uuid.UUID) bool {
	key := typingKey{userID: c.user.ID, conversationID: conversationID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.typing[key]; !exists {
		return false
	}
	delete(h.typing, key)
	return true
}

func (h *Hub) broadcastTypingChanged(user domain.PublicUser, conversationID uuid.UUID, isTyping bool, exclude *Client) {
	evt, err := NewEvent(EventTypeTypingChanged, &conversationID, TypingChangedPayload{
		UserID:         user.ID,
		Username:       user.Username,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
	if err != nil {
		return
	}
	h.BroadcastToRoom(conversationID, evt, exclude)
}

func (h *Hub) emitPresence(targets []*Client, user domain.PublicUser, online bool) {
	evt, err := NewEvent(EventTypePresenceChanged, nil, PresencePayload{
		UserID:   user.ID,
		Username: user.Username,
		Online:   online,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for _, c := range targets {
		h.deliver(c, data)
	}
}

// deliver enqueues data on the client's send buffer. A session that
// cannot keep up is disconnected rather than allowed to stall the rest
// of the room.
func (h *Hub) deliver(c *Client, data []byte) {
	if c.enqueue(data) {
		return
	}
	h.logger.Warn("send buffer full, dropping session",
		zap.String("user_id", c.user.ID.String()))
	go h.Unregister(c)
}

// otherUsersClientsLocked collects every session not belonging to userID.
// Callers hold h.mu.
func (h *Hub) otherUsersClientsLocked(userID uuid.UUID) []*Client {
	var out []*Client
	for uid, set := range h.sessions {
		if uid == userID {
			continue
		}
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// removeFromRoomLocked detaches the client from a room, dropping the
// room entirely once empty. Callers hold h.mu.
func (h *Hub) removeFromRoomLocked(c *Client, conversationID uuid.UUID) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
	delete(c.rooms, conversationID)
}
