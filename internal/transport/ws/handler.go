package ws

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/dkolar7/paperback/internal/service"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket. The
// bearer token travels as a ?token= query param (browser WebSocket
// clients cannot set headers), and no session is registered until the
// identity gate has verified it.
func ServeWS(
	hub *Hub,
	auth *service.AuthService,
	chat *service.ChatService,
	conversations *service.ConversationService,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		user, err := auth.Verify(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // origin checking is the proxy's job
		})
		if err != nil {
			logger.Warn("websocket accept failed", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, user.Public(), chat, conversations, logger)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
