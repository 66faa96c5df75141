package security

import (
	"errors"
	"testing"
	"time"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret!") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected mismatch for wrong password")
	}
}

func TestUserToken_RoundTrip(t *testing.T) {
	token, expiresAt, err := IssueUserToken("secret", 42, "admin", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}
	claims, err := ParseUserToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, errWrong := ParseUserToken("other", token); errWrong == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestUserToken_Expired(t *testing.T) {
	token, _, err := IssueUserToken("secret", 1, "user", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseUserToken("secret", token); !errors.Is(errParse, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", errParse)
	}
}

func TestTOTP(t *testing.T) {
	enrollment, err := NewTOTPEnrollment("assistant-hub", "alice@example.com")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if enrollment.Secret == "" || enrollment.URL == "" {
		t.Fatalf("expected secret and url, got %+v", enrollment)
	}
	code, err := GenerateTOTPCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !ValidateTOTP(enrollment.Secret, code) {
		t.Fatalf("expected generated code to validate")
	}
	if ValidateTOTP(enrollment.Secret, "") {
		t.Fatalf("expected empty code to fail")
	}
}
