// Package auth signs and verifies the OAuth state tokens that tie a
// provider's authorization callback back to the chat user who started the
// linking flow.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// State token errors.
var (
	ErrInvalidState    = errors.New("invalid state token")
	ErrExpiredState    = errors.New("state token has expired")
	ErrStateGeneration = errors.New("failed to generate state token")
)

const stateIssuer = "nowplaying-bot"

// StateSigner issues and verifies short-lived signed state tokens.
type StateSigner struct {
	secret []byte
	expiry time.Duration
	logger *utils.Logger
}

// NewStateSigner creates a state signer. expiry bounds how long a linking
// flow may stay open.
func NewStateSigner(secret string, expiry time.Duration, logger *utils.Logger) *StateSigner {
	return &StateSigner{
		secret: []byte(secret),
		expiry: expiry,
		logger: logger.Named("state_signer"),
	}
}

// Sign issues a state token for the chat user starting a linking flow.
func (s *StateSigner) Sign(chatUserID int64) (string, error) {
	now := time.Now()

	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   strconv.FormatInt(chatUserID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to sign state token", err, "chatUserId", chatUserID)
		return "", fmt.Errorf("%w: %v", ErrStateGeneration, err)
	}

	return token, nil
}

// Verify checks a state token from a provider callback and returns the chat
// user it was issued to.
func (s *StateSigner) Verify(token string) (int64, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(stateIssuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredState
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !parsed.Valid {
		return 0, ErrInvalidState
	}

	chatUserID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidState
	}

	return chatUserID, nil
}
