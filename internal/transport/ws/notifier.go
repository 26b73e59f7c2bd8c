package ws

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkolar7/paperback/internal/domain"
)

// HubNotifier implements service.Notifier on top of the Hub.
type HubNotifier struct {
	hub    *Hub
	logger *zap.Logger
}

func NewHubNotifier(hub *Hub, logger *zap.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

// MessagePersisted fans the stored message out to every session in the
// conversation's room. The sender's sessions are included so all of
// their devices converge on the server record.
func (n *HubNotifier) MessagePersisted(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessagePersisted, &msg.ConversationID, MessagePayload{Message: *msg})
	if err != nil {
		n.logger.Error("marshaling message event", zap.Error(err))
		return
	}
	n.hub.BroadcastToRoom(msg.ConversationID, evt, nil)
}

// ConversationActivity pushes a lightweight notification to recipient
// sessions that are connected but not looking at this conversation.
// Disconnected recipients get nothing: the store already has the
// message and the next history fetch will show it.
func (n *HubNotifier) ConversationActivity(msg *domain.Message, recipientID uuid.UUID) {
	evt, err := NewEvent(EventTypeConversationActivity, &msg.ConversationID, ConversationActivityPayload{
		Message:        *msg,
		ConversationID: msg.ConversationID,
	})
	if err != nil {
		n.logger.Error("marshaling activity event", zap.Error(err))
		return
	}
	n.hub.SendToUserOutsideRoom(recipientID, msg.ConversationID, evt)
}
