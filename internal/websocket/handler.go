package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/freelancequest/internal/auth"
)

// TokenVerifier resolves an access token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (auth.AuthContext, error)
}

// HandleWebSocket returns an HTTP handler that authenticates the caller,
// upgrades the connection and runs it as a Hub client for that user.
// Unauthenticated requests are rejected with 401 before the upgrade.
// originPatterns restricts cross-origin handshakes; empty allows any origin.
func HandleWebSocket(hub *Hub, verifier TokenVerifier, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	opts := &ws.AcceptOptions{OriginPatterns: originPatterns}
	if len(originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r, true)
		if token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ac, err := verifier.Verify(token)
		if err != nil {
			logger.Debug("websocket: rejected token", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket: accept", "user_id", ac.UserID, "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, ac.UserID)
		logger.Debug("websocket: connected", "user_id", ac.UserID, "client_id", client.id)
		client.Run(r.Context())
		logger.Debug("websocket: disconnected", "user_id", ac.UserID, "client_id", client.id)
	}
}
