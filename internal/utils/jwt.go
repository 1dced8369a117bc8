package utils

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RoomTokenClaims identify an authenticated participant for a session. Tokens
// are optional: a connection without one is admitted as a guest.
type RoomTokenClaims struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

var jwtSecret []byte

func SetJWTSecret(secret string) {
	if secret == "" {
		jwtSecret = nil
		return
	}
	jwtSecret = []byte(secret)
}

// ValidateRoomToken parses and verifies an HS256 room token.
func ValidateRoomToken(tokenStr string) (*RoomTokenClaims, error) {
	if len(jwtSecret) == 0 {
		return nil, errors.New("no jwt secret configured")
	}
	claims := &RoomTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
