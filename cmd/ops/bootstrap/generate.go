package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// tokenByteLength gives 256 bits of entropy, hex-encoded to 64 characters.
// That clears the min=32 rule on CRON_SECRET.
const tokenByteLength = 32

// GenerateSecureToken returns a hex-encoded random token from crypto/rand.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// generatedValue is the output of a generated step. Companion is set for
// steps that produce a key pair; it holds the public half.
type generatedValue struct {
	Value     string
	Companion string
}

func generateToken() (generatedValue, error) {
	token, err := GenerateSecureToken()
	if err != nil {
		return generatedValue{}, err
	}
	return generatedValue{Value: token}, nil
}

// generateVAPIDKeys creates the P-256 pair used to sign Web Push requests.
// The private key is the step value and the public key its companion.
func generateVAPIDKeys() (generatedValue, error) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return generatedValue{}, fmt.Errorf("generating VAPID keys: %w", err)
	}
	return generatedValue{Value: privateKey, Companion: publicKey}, nil
}
