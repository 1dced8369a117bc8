package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateRoomTokenSuccess(t *testing.T) {
	prev := jwtSecret
	t.Cleanup(func() { jwtSecret = prev })
	SetJWTSecret("secret-key")

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &RoomTokenClaims{
		RoomID:   "room-1",
		UserName: "alice",
	}).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	claims, err := ValidateRoomToken(tokenStr)
	if err != nil {
		t.Fatalf("expected valid token, got error %v", err)
	}
	if claims.RoomID != "room-1" || claims.UserName != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRoomTokenWrongSecret(t *testing.T) {
	prev := jwtSecret
	t.Cleanup(func() { jwtSecret = prev })
	SetJWTSecret("secret-key")

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &RoomTokenClaims{
		RoomID: "room-1",
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ValidateRoomToken(tokenStr); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestValidateRoomTokenRejectsNonHMAC(t *testing.T) {
	prev := jwtSecret
	t.Cleanup(func() { jwtSecret = prev })
	SetJWTSecret("secret-key")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodRS256, &RoomTokenClaims{
		RoomID: "room-1",
	}).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	_, err = ValidateRoomToken(tokenStr)
	if err == nil || !strings.Contains(err.Error(), "signing method") {
		t.Fatalf("expected signing method rejection, got %v", err)
	}
}

func TestValidateRoomTokenExpired(t *testing.T) {
	prev := jwtSecret
	t.Cleanup(func() { jwtSecret = prev })
	SetJWTSecret("secret-key")

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &RoomTokenClaims{
		RoomID: "room-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ValidateRoomToken(tokenStr); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestValidateRoomTokenNoSecretConfigured(t *testing.T) {
	prev := jwtSecret
	t.Cleanup(func() { jwtSecret = prev })
	SetJWTSecret("")

	if _, err := ValidateRoomToken("anything"); err == nil {
		t.Fatalf("expected error when no secret is configured")
	}
}
