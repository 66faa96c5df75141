package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// TOTPEnrollment is a freshly generated TOTP secret and its provisioning URL.
type TOTPEnrollment struct {
	Secret string
	URL    string
}

// NewTOTPEnrollment generates a TOTP secret for account under issuer.
func NewTOTPEnrollment(issuer, account string) (TOTPEnrollment, error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if errGenerate != nil {
		return TOTPEnrollment{}, fmt.Errorf("security: generate totp: %w", errGenerate)
	}
	return TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTP reports whether code is valid for secret at the current time.
func ValidateTOTP(secret, code string) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// GenerateTOTPCode returns the code for secret at t.
func GenerateTOTPCode(secret string, t time.Time) (string, error) {
	code, errCode := totp.GenerateCode(secret, t)
	if errCode != nil {
		return "", fmt.Errorf("security: totp code: %w", errCode)
	}
	return code, nil
}
