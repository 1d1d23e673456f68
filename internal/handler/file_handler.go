package handler

import (
	"net/http"
	"time"

	"echochat/internal/app/storage"
	"echochat/internal/pkg/auth/jwt"
	"echochat/internal/pkg/errs"
	"echochat/internal/pkg/logx"
	"echochat/internal/pkg/req"
	"echochat/internal/pkg/resp"
)

// presignUploadDuration is how long a presigned avatar upload URL stays valid.
const presignUploadDuration = 5 * time.Minute

// PresignAvatarInput defines the JSON input structure for generating an avatar upload URL.
type PresignAvatarInput struct {
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignAvatarUpload generates a time-limited, pre-signed URL for
// uploading an avatar, scoped to the authenticated user's key namespace.
func HandlePresignAvatarUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignAvatarInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateAvatar(input.MimeType, input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := storage.AvatarKey(identity.ID, input.MimeType)

		url, err := deps.Storage.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			presignUploadDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
		})
	}
}

// HandleUploadAvatar accepts the avatar bytes in the request body and stores
// them server-side, for clients that cannot use the presigned upload flow.
// The new key is returned; the profile update is a separate call.
func HandleUploadAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		mimeType := r.Header.Get("Content-Type")
		if customErr := storage.ValidateAvatar(mimeType, r.ContentLength); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := storage.AvatarKey(identity.ID, mimeType)

		body := http.MaxBytesReader(w, r.Body, storage.MaxAvatarBytes)
		if err := deps.Storage.Upload(r.Context(), fileKey, mimeType, body); err != nil {
			logx.Error(err, "avatar upload failed", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"fileKey": fileKey,
		})
	}
}

// HandleAvatarDownload redirects to a time-limited, pre-signed URL for the
// requested avatar key.
func HandleAvatarDownload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		fileKey := r.URL.Query().Get("k")
		if fileKey == "" || !storage.IsAvatarKey(fileKey) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), fileKey, avatarURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
