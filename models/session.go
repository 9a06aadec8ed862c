package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session, JWT refresh token oturumunu temsil eder.
// Access token kısa ömürlüdür; refresh token DB'de tutulur, logout'ta silinir.
type Session struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenClaims, access token payload'ı.
// Middleware ve WebSocket handler bu claim'lerden kullanıcıyı çözer.
type TokenClaims struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// RefreshRequest, token yenileme isteği.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
