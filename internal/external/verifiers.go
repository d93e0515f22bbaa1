package external

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrSignatureMissing = errors.New("webhook signature missing")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// PaystackVerifier checks the x-paystack-signature header: the lowercase hex
// HMAC-SHA512 of the raw body keyed with the account secret key.
type PaystackVerifier struct{}

// Verify implements WebhookVerifier.
func (PaystackVerifier) Verify(payload []byte, signature string, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	if secret == "" {
		return errors.New("webhook secret not configured")
	}

	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// SignPaystackPayload computes the signature Paystack would send. Used by
// tests and local tooling that replays webhooks.
func SignPaystackPayload(payload []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
