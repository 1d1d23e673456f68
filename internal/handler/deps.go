package handler

import (
	"context"
	"time"

	"echochat/internal/app/chat"
	"echochat/internal/app/storage"
	"echochat/internal/app/store"
	"echochat/internal/configs"
	"echochat/internal/pkg/pow"
)

// avatarURLDuration is how long presigned avatar download URLs stay valid.
const avatarURLDuration = 15 * time.Minute

// AppDeps bundles the shared dependencies of the HTTP handlers.
type AppDeps struct {
	Coordinator *chat.Coordinator
	Config      *configs.AppConfig
	Users       store.UserStore

	// Storage is nil when no S3 settings are configured (development only);
	// the avatar endpoints are not mounted in that case.
	Storage storage.StorageService

	// Pow gates unauthenticated registration.
	Pow *pow.Manager
}

// AvatarURL resolves a stored avatar key into a presigned download URL.
// Returns the empty string when the key is empty, storage is not configured,
// or presigning fails: the profile is still served, just without an avatar.
func (d *AppDeps) AvatarURL(ctx context.Context, key string) string {
	if key == "" || d.Storage == nil {
		return ""
	}

	url, err := d.Storage.PresignDownload(ctx, key, avatarURLDuration)
	if err != nil {
		return ""
	}
	return url
}
