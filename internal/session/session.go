// Package session issues and validates the bearer tokens the widget carries
// after bootstrap. Tokens are HS256 signed; active sessions are additionally
// registered in Redis so a returning visitor is mapped back onto the same
// conversation until the registry entry expires.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt"
)

const DefaultTTL = 24 * 30 * time.Hour

var ErrInvalidToken = errors.New("session: invalid token")

// Claims is what a parsed widget token carries.
type Claims struct {
	CustomerID string
	BusinessID string
	AgentName  string
}

// Record is the Redis-side session entry keyed by customer id.
type Record struct {
	CustomerID     string `json:"customerId"`
	BusinessID     string `json:"businessId"`
	ConversationID string `json:"conversationId"`
	Email          string `json:"email"`
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
}

// New builds a manager. A nil Redis client disables the registry; tokens
// still validate, sessions just do not survive a server restart.
func New(secret string, ttl time.Duration, rc *redis.Client) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl, redis: rc}
}

func (m *Manager) Issue(c Claims) (string, error) {
	claims := jwt.MapClaims{
		"cid": c.CustomerID,
		"bid": c.BusinessID,
		"agn": c.AgentName,
		"exp": time.Now().Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) Parse(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok || time.Now().Unix() > int64(exp) {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{}
	out.CustomerID, _ = claims["cid"].(string)
	out.BusinessID, _ = claims["bid"].(string)
	out.AgentName, _ = claims["agn"].(string)
	if out.CustomerID == "" {
		return Claims{}, ErrInvalidToken
	}
	return out, nil
}

func registryKey(customerID string) string {
	return "widget_session:" + customerID
}

// Register stores the session record for later lookup by customer id.
func (m *Manager) Register(ctx context.Context, rec Record) error {
	if m.redis == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session register: marshal: %w", err)
	}
	return m.redis.Set(ctx, registryKey(rec.CustomerID), data, m.ttl).Err()
}

// Lookup returns the registered session for a customer id, or ErrInvalidToken
// when none exists.
func (m *Manager) Lookup(ctx context.Context, customerID string) (Record, error) {
	if m.redis == nil {
		return Record{}, ErrInvalidToken
	}
	val, err := m.redis.Get(ctx, registryKey(customerID)).Result()
	if err == redis.Nil {
		return Record{}, ErrInvalidToken
	} else if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, ErrInvalidToken
	}
	return rec, nil
}

// Revoke drops the registry entry when a conversation is wiped.
func (m *Manager) Revoke(ctx context.Context, customerID string) error {
	if m.redis == nil {
		return nil
	}
	return m.redis.Del(ctx, registryKey(customerID)).Err()
}
