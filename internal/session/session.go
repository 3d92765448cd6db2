// Package session provides customer session management for the storefront API.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	cookieName = "botanica_session"
	ttl        = 24 * time.Hour
)

var ErrNoSession = errors.New("no valid session")

// Data is the identity carried by a session. StripeCustomerID is set by the
// auth flow once the customer exists at the processor; it may be empty.
type Data struct {
	UserID           uuid.UUID `json:"user_id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        int64     `json:"created_at"`
}

// Store defines the interface for session storage.
type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// Manager issues and validates signed session tokens. The token is a JWT whose
// ID points at the server-side store entry, so a leaked store key alone cannot
// be replayed.
type Manager struct {
	store         Store
	signingSecret []byte
	secure        bool
}

func NewManager(store Store, signingSecret string, secure bool) *Manager {
	return &Manager{
		store:         store,
		signingSecret: []byte(signingSecret),
		secure:        secure,
	}
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// CreateSession stores the session data and sets the signed cookie.
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter, data *Data) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if data == nil {
		return "", fmt.Errorf("session data is required")
	}

	sessionID := uuid.NewString()
	now := time.Now()

	stored := *data
	stored.CreatedAt = now.Unix()
	m.store.Set(ctx, sessionID, &stored, ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   data.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		m.store.Delete(ctx, sessionID)
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return sessionID, nil
}

// GetSession validates the token from the request and loads the stored data.
func (m *Manager) GetSession(ctx context.Context, r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	if ctx == nil {
		ctx = r.Context()
	}

	sessionID, err := m.verifyToken(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	data, ok := m.store.Get(ctx, sessionID)
	if !ok {
		return nil, ErrNoSession
	}
	if time.Now().Unix()-data.CreatedAt > int64(ttl.Seconds()) {
		m.store.Delete(ctx, sessionID)
		return nil, ErrNoSession
	}

	return data, nil
}

// DestroySession removes the session and clears the cookie.
func (m *Manager) DestroySession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if ctx == nil {
		ctx = r.Context()
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		if sessionID, verifyErr := m.verifyToken(cookie.Value); verifyErr == nil {
			m.store.Delete(ctx, sessionID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) verifyToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingSecret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.ID, nil
}
