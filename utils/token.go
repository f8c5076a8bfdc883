package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidSubject   = errors.New("invalid token subject")
	ErrKeyTooShort      = errors.New("signing key must be at least 32 bytes")
)

// MinKeyLength is the shortest HMAC key accepted for HS256 tokens.
const MinKeyLength = 32

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey       []byte        // HS256 key
	ExpectedSubject string        // Optional: validate subject
	ClockSkew       time.Duration // Optional: allow clock skew (default 0)
}

// SignToken issues an HS256 JWT for subject valid until expiry.
func SignToken(key []byte, issuer, subject string, expiry time.Time) (string, error) {
	if len(key) < MinKeyLength {
		return "", ErrKeyTooShort
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	claims := jwt.Claims{
		Issuer:   issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(expiry),
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}

// VerifyToken checks signature, expiry and (optionally) subject of an HS256 JWT.
func VerifyToken(tokenString string, config VerifyConfig) (*jwt.Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	if len(config.SecretKey) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &jwt.Claims{}
	if err := tok.Claims(config.SecretKey, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.Expiry != nil && claims.Expiry.Time().Add(config.ClockSkew).Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	if config.ExpectedSubject != "" && claims.Subject != config.ExpectedSubject {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrInvalidSubject, config.ExpectedSubject, claims.Subject)
	}

	return claims, nil
}
