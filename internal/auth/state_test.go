package auth

import (
	"errors"
	"testing"
	"time"

	"norelock.dev/nowplaying/bot/internal/utils"
)

func TestStateSignerRoundTrip(t *testing.T) {
	signer := NewStateSigner("test-secret", 15*time.Minute, utils.NewNopLogger())

	token, err := signer.Sign(123456789)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	chatUserID, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() returned error: %v", err)
	}
	if chatUserID != 123456789 {
		t.Errorf("Verify() = %d, want 123456789", chatUserID)
	}
}

func TestStateSignerRejectsExpiredToken(t *testing.T) {
	signer := NewStateSigner("test-secret", -time.Minute, utils.NewNopLogger())

	token, err := signer.Sign(1)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	if _, err := signer.Verify(token); !errors.Is(err, ErrExpiredState) {
		t.Fatalf("Verify() error = %v, want ErrExpiredState", err)
	}
}

func TestStateSignerRejectsWrongSecret(t *testing.T) {
	signer := NewStateSigner("test-secret", 15*time.Minute, utils.NewNopLogger())
	other := NewStateSigner("other-secret", 15*time.Minute, utils.NewNopLogger())

	token, err := signer.Sign(1)
	if err != nil {
		t.Fatalf("Sign() returned error: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Verify() error = %v, want ErrInvalidState", err)
	}
}

func TestStateSignerRejectsGarbage(t *testing.T) {
	signer := NewStateSigner("test-secret", 15*time.Minute, utils.NewNopLogger())

	if _, err := signer.Verify("not-a-token"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Verify() error = %v, want ErrInvalidState", err)
	}
}
