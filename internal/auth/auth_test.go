package auth

import (
	"testing"
	"time"

	"kiama-backend/internal/apperrors"
)

func setupAuth(t *testing.T, passwordHash string) {
	t.Helper()
	Setup("test-secret", passwordHash)
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	setupAuth(t, "")

	tokenString, err := CreateToken(42, "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := VerifyToken(tokenString)
	if err != nil {
		t.Fatalf("VerifyToken failed unexpectedly: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("got principal %q, want %q", claims.Username, "alice")
	}
	if claims.UserID != 42 {
		t.Errorf("got user ID %d, want 42", claims.UserID)
	}
}

func TestVerifyTokenRejectsTampered(t *testing.T) {
	setupAuth(t, "")

	tokenString, err := CreateToken(1, "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	_, err = VerifyToken(tokenString + "x")
	if err == nil {
		t.Fatal("tampered token passed verification")
	}
	if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Errorf("got code %s, want %s", apperrors.CodeOf(err), apperrors.CodeUnauthenticated)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	setupAuth(t, "")

	tokenString, err := CreateToken(1, "alice", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	_, err = VerifyToken(tokenString)
	if err == nil {
		t.Fatal("expired token passed verification")
	}
}

func TestServerPassword(t *testing.T) {
	hash, err := HashServerPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	setupAuth(t, hash)

	if err := CheckServerPassword("hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}

	err = CheckServerPassword("wrong")
	if err == nil {
		t.Fatal("wrong password accepted")
	}
	if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Errorf("got code %s, want %s", apperrors.CodeOf(err), apperrors.CodeUnauthenticated)
	}
}

func TestNoServerPasswordConfigured(t *testing.T) {
	setupAuth(t, "")

	if err := CheckServerPassword(""); err != nil {
		t.Errorf("password check should pass when none is configured: %v", err)
	}
}
