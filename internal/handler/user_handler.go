/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	"echochat/internal/app/storage"
	"echochat/internal/app/user"
	"echochat/internal/pkg/auth/jwt"
	"echochat/internal/pkg/errs"
	"echochat/internal/pkg/logx"
	"echochat/internal/pkg/req"
	"echochat/internal/pkg/resp"
)

// HandleGetUserProfile returns the authenticated account's profile.
func HandleGetUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		rec, err := deps.Users.FindByID(r.Context(), identity.ID)
		if err != nil {
			logx.Warn("get_user_profile: user not found", "id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": user.ProfileFrom(rec, deps.AvatarURL(r.Context(), rec.AvatarKey)),
		})
	}
}

type UpdateProfileInput struct {
	Nickname  string `json:"nickname"`
	AvatarKey string `json:"avatarKey,omitempty"`
}

// HandleUpdateUserProfile updates the nickname and avatar of the authenticated
// account and re-issues the identity token so clients see the change immediately.
func HandleUpdateUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil || identity.UserType != "registered" {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input UpdateProfileInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		nicknameLen := utf8.RuneCountInString(input.Nickname)
		if nicknameLen < 1 || nicknameLen > 30 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		// An avatar key must come from this user's own presigned upload.
		if input.AvatarKey != "" && !storage.IsAvatarKeyFor(input.AvatarKey, identity.ID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		oldRec, err := deps.Users.FindByID(r.Context(), identity.ID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		avatarKey := input.AvatarKey
		if avatarKey == "" {
			avatarKey = oldRec.AvatarKey
		}

		rec, err := deps.Users.UpdateProfile(r.Context(), identity.ID, input.Nickname, avatarKey)
		if err != nil {
			logx.Error(err, "failed to update user profile", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreWrite))
			return
		}

		// The replaced avatar object is garbage now; best-effort cleanup.
		oldKey := oldRec.AvatarKey
		if deps.Storage != nil && oldKey != "" && oldKey != avatarKey {
			go func(k string) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = deps.Storage.Delete(ctx, k)
			}(oldKey)
		}

		avatarURL := deps.AvatarURL(r.Context(), rec.AvatarKey)

		finalResponse := map[string]any{
			"user": user.ProfileFrom(rec, avatarURL),
		}

		newPayload := &jwt.Payload{
			ID:       identity.ID,
			UserType: identity.UserType,
			Nickname: rec.Nickname,
			Avatar:   avatarURL,
		}

		newToken, err := jwt.GenerateToken(newPayload, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "update_profile: token generation failed, fallback to old token")
		} else {
			finalResponse["token"] = newToken
		}

		resp.RespondSuccess(w, r, finalResponse)
	}
}
