// Package auth issues and checks operator session tokens and hashes
// passwords for operators and agents.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no authentication token provided")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
)

// DefaultTokenTTL matches the one-day sessions operators expect.
const DefaultTokenTTL = 24 * time.Hour

// Principal is the signed-in operator a token speaks for.
type Principal struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Claims represents the JWT claims for an operator session
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c *Claims) Principal() Principal {
	return Principal{UserID: c.UserID, Email: c.Email, Role: c.Role}
}

// TokenManager signs and validates HS256 session tokens.
type TokenManager struct {
	secretKey     []byte
	ttl           time.Duration
	now           func() time.Time
	mu            sync.RWMutex
	revokedTokens map[string]time.Time // token ID -> revocation time
}

// NewTokenManager creates a token manager. A non-positive ttl falls back to
// DefaultTokenTTL.
func NewTokenManager(secretKey string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secretKey:     []byte(secretKey),
		ttl:           ttl,
		now:           time.Now,
		revokedTokens: make(map[string]time.Time),
	}
}

// TTL reports how long issued tokens stay valid.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a new token for the principal.
func (tm *TokenManager) Issue(p Principal) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	now := tm.now()
	claims := &Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature, expiry, and revocation list.
func (tm *TokenManager) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secretKey, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	tm.mu.RLock()
	_, revoked := tm.revokedTokens[claims.ID]
	tm.mu.RUnlock()
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blocks a still-valid token until it would have expired anyway.
func (tm *TokenManager) Revoke(tokenString string) error {
	claims, err := tm.Validate(tokenString)
	if err != nil {
		return err
	}
	expires := tm.now().Add(tm.ttl)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.revokedTokens[claims.ID] = expires
	return nil
}

// CleanupRevokedTokens drops revocations for tokens that have since expired.
func (tm *TokenManager) CleanupRevokedTokens() {
	now := tm.now()
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for tokenID, expires := range tm.revokedTokens {
		if expires.Before(now) {
			delete(tm.revokedTokens, tokenID)
		}
	}
}

// RevokedTokenCount returns the number of revoked tokens (for testing)
func (tm *TokenManager) RevokedTokenCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.revokedTokens)
}

func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
