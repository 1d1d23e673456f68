/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is used to generate server-assigned UUID message identifiers and randomized
default nicknames for newly registered accounts.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))
)

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
// Client-side optimistic (correlation) identifiers are never valid UUIDs, which is what lets
// the server distinguish persisted messages from unconfirmed ones.
func MessageID() string {
	return uuid.New().String()
}

// UserNickname generates a random nickname with a "User_" prefix and 6 random Base62 characters.
func UserNickname() (string, error) {
	const nicknameRandomLength = 6
	result := make([]byte, nicknameRandomLength)

	for i := range nicknameRandomLength {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for nickname: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return "User_" + string(result), nil
}
