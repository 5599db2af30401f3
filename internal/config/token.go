package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The cloud auth token file holds the token base64-obfuscated. This is
// obfuscation, not encryption; real secrets belong in the credentials
// store.

func cloudTokenPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find config directory: %w", err)
	}
	dir := filepath.Join(base, "mailclient")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return filepath.Join(dir, ".cloud_token"), nil
}

// SaveCloudToken stores the cloud auth token
func SaveCloudToken(token string) error {
	path, err := cloudTokenPath()
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(token))
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write cloud token: %w", err)
	}
	return nil
}

// LoadCloudToken reads the cloud auth token; empty when absent
func LoadCloudToken() (string, error) {
	path, err := cloudTokenPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cloud token: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("cloud token file is corrupt: %w", err)
	}
	return string(decoded), nil
}

// ClearCloudToken removes the stored token, e.g. after an auth failure
func ClearCloudToken() error {
	path, err := cloudTokenPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cloud token: %w", err)
	}
	return nil
}
