package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret-0123456789", time.Hour)

	raw, err := tokens.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	uid, err := tokens.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if uid != 42 {
		t.Errorf("Parse() = %d, want 42", uid)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	tokens := NewTokens("test-secret-0123456789", time.Hour)
	other := NewTokens("another-secret-0123456", time.Hour)
	expired := NewTokens("test-secret-0123456789", -time.Minute)

	foreign, _ := other.Issue(1)
	stale, _ := expired.Issue(1)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": 1, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret-0123456789"))

	tests := map[string]string{
		"garbage":       "not-a-token",
		"wrong secret":  foreign,
		"expired":       stale,
		"alg none":      none,
		"missing claim": noUser,
	}
	for name, raw := range tests {
		if _, err := tokens.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: Parse() error = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestUserIDContext(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Error("empty context should carry no user")
	}
	uid, ok := UserID(WithUserID(context.Background(), 7))
	if !ok || uid != 7 {
		t.Errorf("UserID() = %d, %v; want 7, true", uid, ok)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
