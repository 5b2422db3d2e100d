package caller

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// authEnv holds raw env values before post-parse validation.
type authEnv struct {
	Issuer    string        `env:"EATSOON_AUTH_ISSUER"`
	Audience  string        `env:"EATSOON_AUTH_AUDIENCE"`
	PublicKey string        `env:"EATSOON_AUTH_PUBLIC_KEY"`
	ClockSkew time.Duration `env:"EATSOON_AUTH_CLOCK_SKEW" envDefault:"30s"`

	AppCheckRequired  bool   `env:"EATSOON_APPCHECK_REQUIRED" envDefault:"true"`
	AppCheckIssuer    string `env:"EATSOON_APPCHECK_ISSUER"`
	AppCheckAudience  string `env:"EATSOON_APPCHECK_AUDIENCE"`
	AppCheckPublicKey string `env:"EATSOON_APPCHECK_PUBLIC_KEY"`
}

// Config defines how ID tokens and App Check tokens are verified.
type Config struct {
	Issuer    string
	Audience  string
	Key       ed25519.PublicKey
	ClockSkew time.Duration

	// AppCheckRequired rejects requests without a valid attestation token.
	AppCheckRequired bool
	AppCheckIssuer   string
	AppCheckAudience string
	AppCheckKey      ed25519.PublicKey

	Now func() time.Time
}

// LoadConfigFromEnv reads verifier configuration.
//
// Required:
//   - EATSOON_AUTH_ISSUER, EATSOON_AUTH_AUDIENCE, EATSOON_AUTH_PUBLIC_KEY
//   - EATSOON_APPCHECK_ISSUER, EATSOON_APPCHECK_AUDIENCE, EATSOON_APPCHECK_PUBLIC_KEY
//     unless EATSOON_APPCHECK_REQUIRED=false
//
// Keys are base64 (std or url) encoded raw Ed25519 public keys.
func LoadConfigFromEnv() (Config, error) {
	var raw authEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse auth env: %w", err)
	}

	cfg := Config{
		Issuer:           strings.TrimSpace(raw.Issuer),
		Audience:         strings.TrimSpace(raw.Audience),
		ClockSkew:        raw.ClockSkew,
		AppCheckRequired: raw.AppCheckRequired,
		AppCheckIssuer:   strings.TrimSpace(raw.AppCheckIssuer),
		AppCheckAudience: strings.TrimSpace(raw.AppCheckAudience),
		Now:              time.Now,
	}
	if cfg.Issuer == "" {
		return Config{}, fmt.Errorf("EATSOON_AUTH_ISSUER is required")
	}
	if cfg.Audience == "" {
		return Config{}, fmt.Errorf("EATSOON_AUTH_AUDIENCE is required")
	}
	key, err := decodePublicKey(raw.PublicKey)
	if err != nil {
		return Config{}, fmt.Errorf("EATSOON_AUTH_PUBLIC_KEY: %w", err)
	}
	cfg.Key = key
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}

	if !cfg.AppCheckRequired {
		return cfg, nil
	}
	if cfg.AppCheckIssuer == "" {
		return Config{}, fmt.Errorf("EATSOON_APPCHECK_ISSUER is required")
	}
	if cfg.AppCheckAudience == "" {
		return Config{}, fmt.Errorf("EATSOON_APPCHECK_AUDIENCE is required")
	}
	appKey, err := decodePublicKey(raw.AppCheckPublicKey)
	if err != nil {
		return Config{}, fmt.Errorf("EATSOON_APPCHECK_PUBLIC_KEY: %w", err)
	}
	cfg.AppCheckKey = appKey
	return cfg, nil
}

func decodePublicKey(v string) (ed25519.PublicKey, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("is required")
	}
	var (
		b   []byte
		err error
	)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err = enc.DecodeString(v)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(b), nil
}
