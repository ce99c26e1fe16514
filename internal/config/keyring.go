package config

import (
	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name in the OS keychain.
	keyringService = "shipfacts"
	// keyringGitHubTokenItem is the key under which the GitHub token lives.
	keyringGitHubTokenItem = "github-token"
)

// tokenFromKeyring reads the GitHub token from the OS keychain.
// Returns "" without an error when the item does not exist.
func tokenFromKeyring() (string, error) {
	tok, err := keyring.Get(keyringService, keyringGitHubTokenItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	return tok, err
}

// SaveGitHubToken stores the GitHub token in the OS keychain.
func SaveGitHubToken(token string) error {
	return keyring.Set(keyringService, keyringGitHubTokenItem, token)
}
