package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"echochat/internal/pkg/errs"
)

const (
	// MaxAvatarBytes caps avatar uploads.
	MaxAvatarBytes = 2 << 20

	// avatarKeyPrefix is the bucket prefix all avatar objects live under.
	avatarKeyPrefix = "avatars/"
)

// avatarExtensions maps the accepted avatar MIME types to the file extension
// used in the object key.
var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ValidateAvatar checks the declared MIME type and size against the avatar policy.
func ValidateAvatar(mimeType string, size int64) *errs.CustomError {
	if _, ok := avatarExtensions[mimeType]; !ok {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if size <= 0 || size > MaxAvatarBytes {
		return errs.NewError(errs.ErrRequestEntityTooLarge)
	}
	return nil
}

// AvatarKey builds a fresh object key for the user's avatar. Keys are never
// reused so a stale CDN or browser cache cannot serve a replaced image.
func AvatarKey(userID, mimeType string) string {
	return fmt.Sprintf("%s%s/%s%s", avatarKeyPrefix, userID, uuid.NewString(), avatarExtensions[mimeType])
}

// IsAvatarKey reports whether the key lives in the avatar namespace at all,
// keeping download redirects from reaching arbitrary bucket objects.
func IsAvatarKey(key string) bool {
	return strings.HasPrefix(key, avatarKeyPrefix)
}

// IsAvatarKeyFor reports whether the key belongs to the given user's avatar
// namespace, guarding profile updates from pointing at foreign objects.
func IsAvatarKeyFor(key, userID string) bool {
	return strings.HasPrefix(key, avatarKeyPrefix+userID+"/")
}
