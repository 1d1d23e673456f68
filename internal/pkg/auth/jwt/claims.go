package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by an identity token.
// It embeds the standard claims required by the JWT specification plus the
// custom claims the server needs to identify a chat participant.
type Payload struct {
	// StandardClaims embeds the standard JWT fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer), used for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the unique identifier of the account the token was issued to.
	ID string `json:"id"`

	// UserType defines the role of the participant (currently always "registered").
	UserType string `json:"user_type"`

	// Nickname is the display name snapshot at token issue time.
	Nickname string `json:"nickname,omitempty"`

	// Avatar is the avatar URL snapshot at token issue time.
	Avatar string `json:"avatar,omitempty"`
}
