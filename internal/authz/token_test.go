package authz

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "test-secret-at-least-32-chars-long!!"

func TestAccessTokenRoundTrip(t *testing.T) {
	user := &User{ID: "usr-12345678", DisplayName: "Alice Tenant"}

	token, err := GenerateAccessToken(user, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "usr-12345678" {
		t.Errorf("subject: got %q", claims.Subject)
	}
	if claims.DisplayName != "Alice Tenant" {
		t.Errorf("display name: got %q", claims.DisplayName)
	}
	if claims.SessionID == "" {
		t.Error("session id should be set")
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(&User{ID: "u1"}, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	_, err = ParseToken(token, "a-completely-different-32-char-secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateAccessToken(&User{ID: "u1"}, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	// Corrupt the payload; signature validation must reject it.
	parts := strings.Split(token, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "xx"
	_, err = ParseToken(strings.Join(parts, "."), testSecret)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}
