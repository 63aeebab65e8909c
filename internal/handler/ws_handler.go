/*
Package handler provides the HTTP handlers and routing setup for the
messaging server.

This file contains the WebSocket handler: rate limiting, connection
upgrade, connection authentication against the inherited HTTP session,
and client lifecycle startup.
*/
package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/chat"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

// authRejectWait bounds the write of the rejection frame to an
// unauthenticated connection.
const authRejectWait = 5 * time.Second

// HandleWebSocket creates an HTTP HandlerFunc to process messaging
// connection requests. The connection is authenticated through the
// resolver chain using the session context inherited from the HTTP
// request; an unauthenticated connection receives one error event and is
// terminated immediately, without registering presence or attaching any
// handler.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		// Resolve identity from the HTTP request before it is consumed by
		// the upgrade.
		userID, authErr := deps.Auth.Authenticate(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		if authErr != nil {
			rejectConnection(conn, authErr)
			return
		}

		client := chat.NewClient(deps.Coordinator, conn, userID)

		go client.WritePump()

		logx.Info("WebSocket connection established", "client_id", userID)

		deps.Coordinator.Attach(client)

		client.ReadPump()
	}
}

// rejectConnection sends one error event to the unauthenticated client and
// closes the connection.
func rejectConnection(conn *websocket.Conn, customErr *errs.CustomError) {
	frame, err := json.Marshal(chat.Envelope{
		Event:   chat.EventError,
		Payload: chat.ErrorPayload{Error: customErr.Message, Status: "error"},
	})

	conn.SetWriteDeadline(time.Now().Add(authRejectWait))

	if err == nil {
		if writeErr := conn.WriteMessage(websocket.TextMessage, frame); writeErr != nil {
			logx.Warn("Failed to write rejection frame", "error", writeErr)
		}
	}

	closeMessage := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, customErr.Message)
	if writeErr := conn.WriteMessage(websocket.CloseMessage, closeMessage); writeErr != nil {
		logx.Warn("Failed to write close frame", "error", writeErr)
	}

	conn.Close()
}
