// Package auth provides the pluggable authentication for the dfm HTTP
// surface: none, a shared API key in the X-DFM-Auth header, or JWT bearer
// tokens.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/nimbusworks/dfm/errors"
)

// HeaderAPIKey is the request header carrying the shared API key.
const HeaderAPIKey = "X-DFM-Auth"

// Config selects and configures the authentication mode.
type Config struct {
	// Mode is one of "none", "api_key", "jwt".
	Mode string `mapstructure:"mode"`
	// APIKey is the shared secret for api_key mode.
	APIKey string `mapstructure:"api_key"`
	// JWTSecret is the HS256 signing key for jwt mode.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ApplyDefaults sets the default mode.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "none"
	}
}

// Validate checks mode-specific requirements.
func (c *Config) Validate() error {
	switch c.Mode {
	case "none":
		return nil
	case "api_key":
		if c.APIKey == "" {
			return fmt.Errorf("auth.api_key is required for api_key mode")
		}
		return nil
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required for jwt mode")
		}
		return nil
	default:
		return fmt.Errorf("auth.mode must be one of [none, api_key, jwt] (got: %s)", c.Mode)
	}
}

// Authenticator validates incoming requests.
type Authenticator interface {
	// Authenticate returns nil when the request may proceed.
	Authenticate(r *http.Request) error
}

// New builds the authenticator for the configured mode.
func New(cfg Config) (Authenticator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case "api_key":
		return &apiKeyAuthenticator{key: cfg.APIKey}, nil
	case "jwt":
		return &jwtAuthenticator{secret: []byte(cfg.JWTSecret)}, nil
	default:
		return &noneAuthenticator{}, nil
	}
}

type noneAuthenticator struct{}

func (a *noneAuthenticator) Authenticate(_ *http.Request) error { return nil }

type apiKeyAuthenticator struct {
	key string
}

func (a *apiKeyAuthenticator) Authenticate(r *http.Request) error {
	provided := r.Header.Get(HeaderAPIKey)
	if provided == "" {
		return errors.Unauthorized("missing " + HeaderAPIKey + " header")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.key)) != 1 {
		return errors.Forbidden("")
	}
	return nil
}

type jwtAuthenticator struct {
	secret []byte
}

func (a *jwtAuthenticator) Authenticate(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return errors.Unauthorized("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return errors.Unauthorized("invalid Authorization header format")
	}

	token, err := gojwt.Parse(parts[1], func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return errors.Forbidden("invalid token")
	}
	return nil
}
