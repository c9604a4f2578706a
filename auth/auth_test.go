package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestNoneMode(t *testing.T) {
	a, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Authenticate(httptest.NewRequest("GET", "/version", nil)); err != nil {
		t.Errorf("none mode must accept everything: %v", err)
	}
}

func TestAPIKeyMode(t *testing.T) {
	a, err := New(Config{Mode: "api_key", APIKey: "sekrit"})
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("POST", "/process", nil)
	if err := a.Authenticate(r); err == nil {
		t.Error("expected rejection without header")
	}

	r.Header.Set(HeaderAPIKey, "wrong")
	if err := a.Authenticate(r); err == nil {
		t.Error("expected rejection with wrong key")
	}

	r.Header.Set(HeaderAPIKey, "sekrit")
	if err := a.Authenticate(r); err != nil {
		t.Errorf("expected acceptance: %v", err)
	}
}

func TestJWTMode(t *testing.T) {
	a, err := New(Config{Mode: "jwt", JWTSecret: "signing-key"})
	if err != nil {
		t.Fatal(err)
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{
		Subject:   "client-1",
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("signing-key"))
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("POST", "/process", nil)
	if err := a.Authenticate(r); err == nil {
		t.Error("expected rejection without header")
	}

	r.Header.Set("Authorization", "Bearer "+signed)
	if err := a.Authenticate(r); err != nil {
		t.Errorf("expected acceptance: %v", err)
	}

	forged := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{})
	badSigned, _ := forged.SignedString([]byte("other-key"))
	r.Header.Set("Authorization", "Bearer "+badSigned)
	if err := a.Authenticate(r); err == nil {
		t.Error("expected rejection of forged token")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Mode: "api_key"}
	if err := cfg.Validate(); err == nil {
		t.Error("api_key mode without key must fail validation")
	}
	cfg = Config{Mode: "password"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown mode must fail validation")
	}
}
