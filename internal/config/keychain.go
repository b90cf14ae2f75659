package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	secretService       = "tweetsweep"
	clientSecretAccount = "twitter_client_secret"
	apiTokenAccount     = "api_token"
)

// Keychain reads and writes secrets in the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a 0600 JSON file elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the admin API. The
// TWEETSWEEP_API_TOKEN environment variable wins; otherwise the token is read
// from the secret store and generated there on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("TWEETSWEEP_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(secretService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(b)
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
