package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenIssuer is set on every token minted by TokenManager
	TokenIssuer = "medtrail"
	// DefaultTokenTTL applies when Issue is called with a non-positive ttl
	DefaultTokenTTL = 24 * time.Hour
)

// ErrInvalidToken is returned for tokens that fail parsing or signature checks
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims understood by the back office
type Claims struct {
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 bearer tokens
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager creates a token manager for the given HMAC secret
func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	return &TokenManager{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a signed token for the principal
func (tm *TokenManager) Issue(p Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := tm.now()

	claims := Claims{
		UserID:   p.UserID,
		Role:     string(p.Role),
		Username: p.Username,
		Name:     p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the principal it carries
func (tm *TokenManager) Verify(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &Principal{
		UserID:   claims.UserID,
		ID:       claims.Subject,
		Role:     Role(claims.Role),
		Username: claims.Username,
		Name:     claims.Name,
	}, nil
}
