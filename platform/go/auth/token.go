package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the platform's bearer credential payload. Tenant-scope tokens
// carry the permission snapshot fixed at issuance; it is never re-derived
// against live role state before expiry.
type Claims struct {
	UserID      uuid.UUID  `json:"user_id"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	Email       string     `json:"email,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies platform credentials with a shared secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenManager constructs a TokenManager; ttl defaults to 24h.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if secret == "" {
		panic("token manager requires signing secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, issuer: "platform-core"}
}

// IssueParams captures the identity and scope embedded at login.
type IssueParams struct {
	UserID      uuid.UUID
	TenantID    *uuid.UUID
	Email       string
	Permissions []string
}

// Issue signs a credential for the given subject. Master-scope credentials
// leave TenantID and Permissions empty.
func (m *TokenManager) Issue(params IssueParams) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      params.UserID,
		TenantID:    params.TenantID,
		Email:       params.Email,
		Permissions: params.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   params.UserID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks signature and expiry and returns the embedded claims.
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return m.secret, nil
		},
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("unparseable token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token missing subject")
	}

	return claims, nil
}

// TTL returns the configured credential lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}
