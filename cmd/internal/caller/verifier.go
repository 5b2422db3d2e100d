package caller

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMissing is returned when no token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenInvalid is returned when a token fails signature or claims validation.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrNotConfigured is returned when a verifier has no key material.
	ErrNotConfigured = errors.New("verifier not configured")
)

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verifier checks ID tokens and App Check tokens.
type Verifier struct {
	cfg Config
}

// NewVerifier constructs a Verifier. The identity key is mandatory; the App
// Check key is only required when cfg.AppCheckRequired is set.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Key) != ed25519.PublicKeySize || cfg.Issuer == "" || cfg.Audience == "" {
		return nil, ErrNotConfigured
	}
	if cfg.AppCheckRequired && (len(cfg.AppCheckKey) != ed25519.PublicKeySize || cfg.AppCheckAudience == "") {
		return nil, ErrNotConfigured
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg}, nil
}

// AppCheckRequired reports whether requests must carry an attestation token.
func (v *Verifier) AppCheckRequired() bool {
	return v != nil && v.cfg.AppCheckRequired
}

// VerifyIDToken validates a provider ID token and returns the caller identity.
func (v *Verifier) VerifyIDToken(raw string) (Identity, error) {
	if v == nil {
		return Identity{}, ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrTokenMissing
	}

	var claims idTokenClaims
	if err := v.parse(raw, &claims, v.cfg.Key, v.cfg.Issuer, v.cfg.Audience); err != nil {
		return Identity{}, err
	}
	uid := strings.TrimSpace(claims.Subject)
	if uid == "" || len(uid) > 128 {
		return Identity{}, ErrTokenInvalid
	}

	id := Identity{
		UID:  uid,
		Name: strings.TrimSpace(claims.Name),
	}
	if claims.EmailVerified {
		id.Email = strings.TrimSpace(claims.Email)
	}
	if p := strings.TrimSpace(claims.Picture); p != "" {
		id.Picture = &p
	}
	return id, nil
}

// VerifyAppCheck validates an attestation token. It is a no-op success when
// App Check is not required.
func (v *Verifier) VerifyAppCheck(raw string) error {
	if v == nil {
		return ErrNotConfigured
	}
	if !v.cfg.AppCheckRequired {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrTokenMissing
	}
	var claims jwt.RegisteredClaims
	if err := v.parse(raw, &claims, v.cfg.AppCheckKey, v.cfg.AppCheckIssuer, v.cfg.AppCheckAudience); err != nil {
		return err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrTokenInvalid
	}
	return nil
}

func (v *Verifier) parse(raw string, claims jwt.Claims, key ed25519.PublicKey, issuer, audience string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return errors.Join(ErrTokenInvalid, err)
	}
	return nil
}
