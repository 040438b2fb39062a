package websocket

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
)

// Authenticator gates an upgrade to the progress stream. The engine itself
// has no authorization model (§1 Non-goals); this only identifies the
// caller for logging and lets the hosting process plug in whatever scheme
// it needs.
type Authenticator interface {
	Authenticate(r *http.Request) (subject string, err error)
}

// JWTAuth authenticates a connection against an HMAC-signed JWT.
type JWTAuth struct {
	secretKey string
}

func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

// Authenticate looks for a bearer token in, in order: the Authorization
// header, the "token" query parameter, and an "auth-<token>" entry in
// Sec-WebSocket-Protocol (for browser clients that cannot set arbitrary
// headers on a WebSocket handshake).
func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return a.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return a.validateToken(token)
	}

	for _, p := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		if p = strings.TrimSpace(p); strings.HasPrefix(p, "auth-") {
			return a.validateToken(strings.TrimPrefix(p, "auth-"))
		}
	}

	return "", ErrMissingToken
}

// flowClaims are the custom claims carried by a progress-stream token.
// Principal, not Subject, holds the caller identity: jwt.RegisteredClaims
// already embeds its own Subject field, and reusing that name would shadow
// it instead of adding a second one.
type flowClaims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

func (a *JWTAuth) validateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &flowClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*flowClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	subject := claims.Principal
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}

// GenerateToken issues a token identifying principal, for use by callers
// that mint their own tokens (tests, CLI helpers) rather than receiving
// them from an external IdP.
func (a *JWTAuth) GenerateToken(principal string, expiresAt *jwt.NumericDate) (string, error) {
	claims := flowClaims{
		Principal: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			ExpiresAt: expiresAt,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secretKey))
}

// NoAuth accepts every connection, for local development or when the
// hosting process already terminated authentication upstream.
type NoAuth struct{}

func NewNoAuth() *NoAuth { return &NoAuth{} }

func (a *NoAuth) Authenticate(r *http.Request) (string, error) {
	if subject := r.URL.Query().Get("user_id"); subject != "" {
		return subject, nil
	}
	return "anonymous", nil
}
