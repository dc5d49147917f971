// Package totp wraps TOTP provisioning-URI generation and verification for
// the operator login OTP branch (§4.6.1): SHA-1, 6 digits, 30-second step,
// issuer "FBugReporter". Grounded in the original user_service.rs's use of
// totp_rs::TOTP::new(SHA1, 6, 1, 30, secret); no example repo implements
// TOTP, so github.com/pquerna/otp is used as a named ecosystem addition.
package totp

import (
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Issuer is the provisioning-URI issuer name shown in authenticator apps.
const Issuer = "FBugReporter"

// GenerateSecret returns a new random base32-encoded TOTP secret.
func GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI an operator's GUI renders as a QR
// code during OTP enrollment.
func ProvisioningURI(username, secret string) (string, error) {
	key, err := otp.NewKeyFromURL("otpauth://totp/" + Issuer + ":" + username +
		"?secret=" + secret + "&issuer=" + Issuer + "&algorithm=SHA1&digits=6&period=30")
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// Verify checks code against the current 30-second-step SHA-1 TOTP token
// derived from secret.
func Verify(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Current returns the current TOTP token for secret, used only by tests
// that need to drive the login flow without a human entering a code.
func Current(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}
