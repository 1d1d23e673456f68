/*
Package handler provides HTTP handler functions for conversation history and
presence queries. These mirror the matching WebSocket events so clients can
hydrate state over plain HTTP before the socket is up.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"echochat/internal/app/chat"
	"echochat/internal/pkg/auth/jwt"
	"echochat/internal/pkg/errs"
	"echochat/internal/pkg/logx"
	"echochat/internal/pkg/resp"
)

// HandleGetMessages returns the authenticated user's visible slice of the
// conversation with the peer in the URL. Messages the viewer deleted for
// themselves and messages deleted for everyone never appear.
func HandleGetMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		peerID := chi.URLParam(r, "peerID")
		if _, err := uuid.Parse(peerID); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		records, err := deps.Coordinator.History(r.Context(), identity.ID, identity.ID, peerID)
		if err != nil {
			logx.Error(err, "failed to load message history", "viewer_id", identity.ID, "peer_id", peerID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreRead))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": chat.MessageViews(records),
		})
	}
}

// HandleGetUserStatuses reports every known user's online flag and last
// activity. Online is derived from live connections, not the persisted flag.
func HandleGetUserStatuses(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		statuses, err := deps.Coordinator.OnlineStatuses(r.Context())
		if err != nil {
			logx.Error(err, "failed to load online statuses")
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreRead))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"userStatuses": statuses,
		})
	}
}
