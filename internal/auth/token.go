package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typeAccess        = "access"
	typePasswordReset = "password_reset"

	resetTokenTTL = time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Tokens issues and verifies HS256-signed bearer tokens. Access tokens carry
// a user id subject; password-reset tokens carry an email subject and a fixed
// one-hour expiry regardless of the access TTL.
type Tokens struct {
	secret    []byte
	accessTTL time.Duration
}

func NewTokens(secret string, accessTTL time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), accessTTL: accessTTL}
}

func (t *Tokens) IssueAccessToken(userID int64) (string, error) {
	return t.issue(strconv.FormatInt(userID, 10), typeAccess, t.accessTTL)
}

// ParseAccessToken returns the subject user id. It fails with ErrExpiredToken
// past expiry, and ErrInvalidToken for any other defect: bad signature,
// malformed payload, wrong token type, or a non-integer subject.
func (t *Tokens) ParseAccessToken(token string) (int64, error) {
	c, err := t.parse(token)
	if err != nil {
		return 0, err
	}
	if c.Type != typeAccess {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func (t *Tokens) IssueResetToken(email string) (string, error) {
	return t.issue(email, typePasswordReset, resetTokenTTL)
}

// VerifyResetToken returns the subject email and true for a valid reset
// token. Every failure mode collapses to false; callers must not learn
// whether a token was expired, forged, or simply the wrong kind.
func (t *Tokens) VerifyResetToken(token string) (string, bool) {
	c, err := t.parse(token)
	if err != nil || c.Type != typePasswordReset || c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}

func (t *Tokens) issue(subject, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: tokenType,
	})
	return token.SignedString(t.secret)
}

func (t *Tokens) parse(token string) (*claims, error) {
	parsed := &claims{}
	_, err := jwt.ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	return parsed, nil
}

// HashToken returns a stable digest of a token for storage, so the ledger
// never holds a usable token.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
