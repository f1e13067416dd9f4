package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.IssueAccessToken(42)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	userID, err := tokens.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected subject 42, got %d", userID)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	tokens := NewTokens("test-secret", -time.Minute)

	token, err := tokens.IssueAccessToken(7)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	if _, err := tokens.ParseAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := NewTokens("secret-a", time.Hour).IssueAccessToken(1)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	if _, err := NewTokens("secret-b", time.Hour).ParseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAccessTokenMalformed(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := tokens.ParseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestAccessTokenRejectsNonIntegerSubject(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	token, err := tokens.issue("not-a-number", typeAccess, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := tokens.ParseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResetTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.IssueResetToken("user@example.com")
	if err != nil {
		t.Fatalf("issue reset token: %v", err)
	}

	email, ok := tokens.VerifyResetToken(token)
	if !ok {
		t.Fatalf("expected reset token to verify")
	}
	if email != "user@example.com" {
		t.Fatalf("expected subject email, got %q", email)
	}
}

func TestResetTokenRejectsAccessToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.IssueAccessToken(9)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	if _, ok := tokens.VerifyResetToken(token); ok {
		t.Fatalf("access token must not verify as a reset token")
	}
}

func TestAccessTokenRejectsResetToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.IssueResetToken("user@example.com")
	if err != nil {
		t.Fatalf("issue reset token: %v", err)
	}
	if _, err := tokens.ParseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResetTokenExpired(t *testing.T) {
	now := time.Now()
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@example.com",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
		Type: typePasswordReset,
	})
	token, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, ok := NewTokens("test-secret", time.Hour).VerifyResetToken(token); ok {
		t.Fatalf("expired reset token must not verify")
	}
}

func TestHashTokenIsStableAndOpaque(t *testing.T) {
	first := HashToken("some-token")
	second := HashToken("some-token")
	if first != second {
		t.Fatalf("expected stable digest")
	}
	if strings.Contains(first, "some-token") {
		t.Fatalf("digest must not contain the token")
	}
	if HashToken("other-token") == first {
		t.Fatalf("distinct tokens should hash differently")
	}
}
