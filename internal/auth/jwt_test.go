package auth

import (
	"testing"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

const (
	testSecret = "super-secret-test-key"
	testIssuer = "test-issuer"
)

var testIdentity = models.Identity{
	Subject:   "auth|user-123",
	Name:      "Ada Student",
	Email:     "ada@uni.test",
	AvatarURL: "https://img.test/ada.png",
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(testIdentity, testSecret, testIssuer, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ParseToken(token, testSecret, testIssuer)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if got := claims.Identity(); got != testIdentity {
		t.Errorf("identity: got %+v, want %+v", got, testIdentity)
	}
}

func TestParseToken_InvalidSecret(t *testing.T) {
	token, err := GenerateToken(testIdentity, testSecret, testIssuer, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token, "wrong-secret", testIssuer); err == nil {
		t.Fatal("expected error for invalid secret, got nil")
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	token, err := GenerateToken(testIdentity, testSecret, "someone-else", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token, testSecret, testIssuer); err == nil {
		t.Fatal("expected error for wrong issuer")
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(testIdentity, testSecret, testIssuer, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token, testSecret, testIssuer); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestParseToken_Malformed(t *testing.T) {
	if _, err := ParseToken("not.a.real.token", testSecret, testIssuer); err == nil {
		t.Fatal("expected error for malformed token, got nil")
	}
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	if _, err := GenerateToken(models.Identity{Name: "nobody"}, testSecret, testIssuer, time.Hour); err == nil {
		t.Fatal("expected error for empty subject")
	}
}
