// Package qrtoken issues and verifies the short-lived signed payloads that a
// student's screen renders as a QR code. Tokens are HS256 JWTs and nothing is
// persisted: the expiry travels inside the signed claims.
package qrtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNotSigned means the input is not a signed token at all. Callers may
	// fall back to the legacy application-id scheme.
	ErrNotSigned = errors.New("qrtoken: not a signed token")
	// ErrInvalid means the input is a token but is forged, tampered or incomplete.
	ErrInvalid = errors.New("qrtoken: invalid token")
	// ErrExpired means the token verified but its validity window has passed.
	ErrExpired = errors.New("qrtoken: token expired")
)

// Payload binds a student to one round session of a job.
type Payload struct {
	UserID    string `json:"userId"`
	JobID     string `json:"jobId"`
	RoundID   string `json:"roundId"`
	SessionID string `json:"sessionId"`
}

func (p Payload) complete() bool {
	return p.UserID != "" && p.JobID != "" && p.RoundID != "" && p.SessionID != ""
}

// Claims is the JWT body.
type Claims struct {
	Payload
	jwt.RegisteredClaims
}

// Signer issues and verifies QR tokens with a server-held secret.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. ttl is the default validity window.
func NewSigner(key, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Signer{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source; used by tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// TTL returns the default validity window.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs p with the default validity window.
func (s *Signer) Issue(p Payload) (string, time.Time, error) {
	return s.IssueTTL(p, s.ttl)
}

// IssueTTL signs p valid for ttl from now. It returns the token and its expiry.
func (s *Signer) IssueTTL(p Payload, ttl time.Duration) (string, time.Time, error) {
	if !p.complete() {
		return "", time.Time{}, errors.New("qrtoken: payload requires userId, jobId, roundId and sessionId")
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Payload: p,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("qrtoken: sign: %w", err)
	}
	return token, exp, nil
}

// Verify checks integrity and expiry and returns the payload. The error is
// ErrNotSigned, ErrExpired or ErrInvalid.
func (s *Signer) Verify(token string) (Payload, error) {
	if token == "" {
		return Payload{}, ErrNotSigned
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Payload{}, ErrNotSigned
	case errors.Is(err, jwt.ErrTokenExpired):
		return Payload{}, ErrExpired
	default:
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Payload{}, fmt.Errorf("%w: issuer mismatch", ErrInvalid)
	}
	if !claims.Payload.complete() {
		return Payload{}, fmt.Errorf("%w: incomplete payload", ErrInvalid)
	}
	return claims.Payload, nil
}
