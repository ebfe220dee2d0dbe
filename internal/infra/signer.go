package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

const syncSubject = "brotherhood-sync"

// ErrNoPairingSecret is returned when brotherhood transport is configured without a secret.
var ErrNoPairingSecret = errors.New("pairing secret not set")

// syncClaims carries one sync payload. The issuer is the sending device.
type syncClaims struct {
	jwt.RegisteredClaims
	Payload domain.SyncPayloadWire `json:"payload"`
}

// PayloadSigner signs and verifies sync payloads with the pairing secret both partners share.
type PayloadSigner struct {
	secret []byte
	maxAge time.Duration
	clock  domain.Clock
}

// NewPayloadSigner creates an HS256 signer. Tokens older than maxAge are rejected.
func NewPayloadSigner(secret string, maxAge time.Duration, clock domain.Clock) (*PayloadSigner, error) {
	if secret == "" {
		return nil, ErrNoPairingSecret
	}
	return &PayloadSigner{secret: []byte(secret), maxAge: maxAge, clock: clock}, nil
}

// Sign encodes p as a compact JWT.
func (s *PayloadSigner) Sign(p domain.SyncPayload) (string, error) {
	claims := syncClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.DeviceID,
			Subject:   syncSubject,
			IssuedAt:  jwt.NewNumericDate(p.Timestamp),
			ExpiresAt: jwt.NewNumericDate(p.Timestamp.Add(s.maxAge)),
		},
		Payload: p.ToWire(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign sync payload: %w", err)
	}
	return token, nil
}

// Verify checks signature, age and issuer, and returns the payload.
func (s *PayloadSigner) Verify(token string) (domain.SyncPayload, error) {
	parsed, err := jwt.ParseWithClaims(token, &syncClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithSubject(syncSubject),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return domain.SyncPayload{}, fmt.Errorf("verify sync payload: %w", err)
	}

	claims, ok := parsed.Claims.(*syncClaims)
	if !ok || !parsed.Valid {
		return domain.SyncPayload{}, fmt.Errorf("verify sync payload: %w", jwt.ErrTokenSignatureInvalid)
	}
	if claims.Issuer != claims.Payload.DeviceID {
		return domain.SyncPayload{}, fmt.Errorf("verify sync payload: issuer %q does not match device %q", claims.Issuer, claims.Payload.DeviceID)
	}
	return claims.Payload.FromWire()
}
