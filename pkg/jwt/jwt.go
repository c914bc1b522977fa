package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer         = "companion-api"
	sessionSubject = "session"
)

var (
	// ErrInvalidToken is returned for malformed, expired or mis-signed tokens
	ErrInvalidToken = errors.New("invalid token")
)

type JWTUtil struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// Claims identifies an API caller
type Claims struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// SessionClaims is the payload of the signed session cookie; the session data
// itself lives server side under SessionID.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewJWTUtil creates a signer for the given HMAC secret
func NewJWTUtil(secret string, expiry time.Duration) *JWTUtil {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &JWTUtil{
		secretKey: []byte(secret),
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateToken issues an API token for userID
func (j *JWTUtil) GenerateToken(userID string, scopes ...string) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID: userID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken parses an API token
func (j *JWTUtil) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := j.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.Subject == sessionSubject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignSession wraps a session id into a cookie value valid for maxAge
func (j *JWTUtil) SignSession(sessionID string, maxAge time.Duration) (string, error) {
	now := j.now()
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   sessionSubject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ParseSession returns the session id carried by a cookie value
func (j *JWTUtil) ParseSession(value string) (string, error) {
	claims := &SessionClaims{}
	if err := j.parse(value, claims); err != nil {
		return "", err
	}
	if claims.Subject != sessionSubject || claims.SessionID == "" {
		return "", ErrInvalidToken
	}
	return claims.SessionID, nil
}

func (j *JWTUtil) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
