package api

import (
	"log/slog"
	"net/http"
	"strings"

	"moodmeal/src/internal/gateway"
	"moodmeal/src/internal/recommend"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsRequest is one websocket message. With Detect set, moods are detected
// from Text instead of taken from Mood1 and Mood2.
type wsRequest struct {
	recommend.Query
	Detect bool `json:"detect,omitempty"`
}

func (s *Server) handleWebsocket(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	userID := c.Query("user_id")

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if _, ok := c.Get("ws_key_protocol"); ok {
		// The handshake must echo one of the offered subprotocols.
		requested := c.GetHeader("Sec-WebSocket-Protocol")
		parts := strings.Split(requested, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		upgrader.Subprotocols = parts
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("websocket connected", "remote", c.ClientIP(), "user_id", userID)

	for {
		var msg wsRequest
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
		if msg.UserID == "" {
			msg.UserID = userID
		}

		var reply gin.H
		if msg.Detect {
			out, err := gw.Engine.RecommendText(c.Request.Context(), recommend.TextQuery{Text: msg.Text, UserID: msg.UserID, K: msg.K})
			if err != nil {
				reply = gin.H{"error": err.Error(), "status": statusFor(err)}
			} else {
				reply = gin.H{"moods": out.Moods, "results": out.Results}
			}
		} else {
			results, err := gw.Engine.Recommend(c.Request.Context(), msg.Query)
			if err != nil {
				reply = gin.H{"error": err.Error(), "status": statusFor(err)}
			} else {
				reply = gin.H{"results": results}
			}
		}

		if err := ws.WriteJSON(reply); err != nil {
			slog.Warn("failed to write websocket reply", "error", err)
			break
		}
	}
	slog.Info("websocket closed", "remote", c.ClientIP())
}
