package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims is the token payload binding a player to a match.
type Claims struct {
	PlayerID string `json:"playerId"`
	MatchID  string `json:"matchId"`
	jwt.RegisteredClaims
}

// Manager issues and verifies player session tokens. Tokens are signed
// HS256 with a per-deployment secret and scoped to one match.
type Manager struct {
	secret []byte
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	revoked map[string]time.Time // token ID -> expiry, pruned lazily
}

// NewManager creates a session manager.
func NewManager(secret string, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		secret:  []byte(secret),
		ttl:     ttl,
		logger:  logger,
		revoked: make(map[string]time.Time),
	}
}

// Issue creates a signed token for a player in a match.
func (m *Manager) Issue(playerID, matchID string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID: playerID,
		MatchID:  matchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s:%s:%d", matchID, playerID, now.UnixNano()),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	m.mu.RLock()
	_, revoked := m.revoked[claims.ID]
	m.mu.RUnlock()
	if revoked {
		return nil, fmt.Errorf("token revoked")
	}

	return claims, nil
}

// Revoke invalidates a token before its natural expiry.
func (m *Manager) Revoke(claims *Claims) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	m.revoked[claims.ID] = expiry

	// Prune entries whose tokens have expired anyway.
	now := time.Now()
	for id, exp := range m.revoked {
		if !exp.IsZero() && exp.Before(now) {
			delete(m.revoked, id)
		}
	}
}
