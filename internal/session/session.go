// Package session issues the signed credential handed out after a successful
// unlock, so the question bank can be browsed without re-entering the token.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrDeviceChanged  = errors.New("session belongs to another device")
	ErrNoSecret       = errors.New("session secret required")
)

const issuer = "synapse"

// Claims carries the device the session was issued to and the digest of the
// token that unlocked it. The raw token is never embedded.
type Claims struct {
	DeviceID    string `json:"dev"`
	TokenDigest string `json:"tkd"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret []byte, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a session for deviceID.
func (m *Manager) Issue(tokenDigest, deviceID string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	claims := Claims{
		DeviceID:    deviceID,
		TokenDigest: tokenDigest,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// Parse validates signature, algorithm, issuer and expiry.
func (m *Manager) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidSession
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.DeviceID == "" || claims.TokenDigest == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// Verify parses raw and rejects it when presented from a device other than
// the one it was issued to.
func (m *Manager) Verify(raw, deviceID string) (*Claims, error) {
	claims, err := m.Parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.DeviceID != deviceID {
		return nil, ErrDeviceChanged
	}
	return claims, nil
}
