package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/invigo/invigo-backend/internal/config"
)

func testTokenService() *TokenService {
	return NewTokenService(&config.Config{
		JWTSecret: "test-secret",
		JWTExpiry: time.Hour,
	})
}

func TestManagementTokenRoundTrip(t *testing.T) {
	svc := testTokenService()
	examID := uuid.New()

	token, err := svc.IssueManagementToken(examID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.TokenType != TokenTypeManagement {
		t.Errorf("token type = %q, want %q", claims.TokenType, TokenTypeManagement)
	}
	if claims.ExamID != examID.String() {
		t.Errorf("exam id = %q, want %q", claims.ExamID, examID)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := testTokenService().IssueManagementToken(uuid.New())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	other := NewTokenService(&config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected validation to fail with a different secret")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	if _, err := testTokenService().ValidateToken("not.a.jwt"); err == nil {
		t.Error("expected validation to fail for malformed token")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService(&config.Config{JWTSecret: "test-secret", JWTExpiry: -time.Minute})
	token, err := svc.IssueManagementToken(uuid.New())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expected validation to fail for expired token")
	}
}
