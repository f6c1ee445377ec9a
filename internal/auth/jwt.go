package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer       = "tenant-provisioner"
	operatorRole = "operator"
)

var (
	ErrSecretNotSet = errors.New("JWT secret not set")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims represents the JWT payload
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies operator tokens with an HMAC secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a signed operator JWT for subject
func (a *Authenticator) GenerateToken(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrSecretNotSet
	}

	now := a.now()
	claims := Claims{
		Role: operatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and verifies a JWT string
func (a *Authenticator) ValidateToken(tokenStr string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrSecretNotSet
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Role != operatorRole || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
