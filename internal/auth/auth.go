// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
)

var ErrTokenRevoked = errors.New("token invalidated by server restart")

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens. Tokens issued before the issuer
// was created are rejected, so a restart logs everyone out.
type Issuer struct {
	secret    []byte
	ttl       time.Duration
	notBefore time.Time
	now       func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret:    []byte(secret),
		ttl:       ttl,
		notBefore: time.Now().Truncate(time.Second),
		now:       time.Now,
	}
}

// Issue creates a new token for username
func (i *Issuer) Issue(username string) (string, error) {
	now := i.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Validate checks signature, expiry and issue time of a token
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.IssuedAt == nil || claims.IssuedAt.Time.Before(i.notBefore) {
		return nil, ErrTokenRevoked
	}
	if claims.Username == "" {
		return nil, errors.New("token has no username")
	}
	return claims, nil
}

var (
	defaultIssuer *Issuer
	issuerMutex   sync.RWMutex
)

// InitAuth creates the process-wide issuer from config.AppConfig.
func InitAuth() {
	issuerMutex.Lock()
	defer issuerMutex.Unlock()
	defaultIssuer = NewIssuer(config.AppConfig.JWTSecret, config.AppConfig.JWTExpiration)
}

func current() *Issuer {
	issuerMutex.RLock()
	defer issuerMutex.RUnlock()
	return defaultIssuer
}

// GenerateJWT creates a new JWT for a given username
func GenerateJWT(username string) (string, error) {
	iss := current()
	if iss == nil {
		return "", errors.New("auth not initialized")
	}
	return iss.Issue(username)
}

// ValidateJWT checks the validity of a JWT string
func ValidateJWT(tokenString string) (*Claims, error) {
	iss := current()
	if iss == nil {
		return nil, errors.New("auth not initialized")
	}
	return iss.Validate(tokenString)
}
