/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
upgrading the HTTP connection to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"echochat/internal/app/chat"
	"echochat/internal/pkg/auth/jwt"
	"echochat/internal/pkg/errs"
	"echochat/internal/pkg/limiter"
	"echochat/internal/pkg/logx"
	"echochat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
//
// The socket starts anonymous; a join-user event binds it to a user. When the
// request carries a valid identity token in the "token" query parameter, the
// binding happens immediately instead.
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

		var boundUserID string
		if token := r.URL.Query().Get("token"); token != "" {
			identity, err := jwt.ParseToken(token, deps.Config.JWTSecret)
			if err != nil {
				logx.Warn("WebSocket request rejected: invalid identity token", "ip", ip)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			boundUserID = identity.ID
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Coordinator, conn)

		go client.WritePump()

		deps.Coordinator.Connect(client)
		if boundUserID != "" {
			deps.Coordinator.BindUser(r.Context(), client, boundUserID)
		}

		logx.Info("WebSocket connection established", "conn_id", client.ID(), "user_id", boundUserID)

		client.ReadPump()
	}
}
