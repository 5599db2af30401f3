// Package credentials provides secret storage backed by the OS keyring
// with an opt-in config-file fallback.
package credentials

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"
	"github.com/zitrone/mailengine/internal/logging"
)

const serviceName = "mailengine"

// Store reads and writes per-account passwords. When the OS keyring is
// unavailable the caller falls back to the opt-in password field of the
// account record.
type Store struct {
	keyringEnabled bool
	log            zerolog.Logger
}

// NewStore creates a credential store, probing keyring availability
func NewStore() *Store {
	log := logging.WithComponent("credentials")

	enabled := testKeyring()
	if enabled {
		log.Info().Msg("OS keyring available, using as primary credential storage")
	} else {
		log.Warn().Msg("OS keyring not available, passwords only persist when opted into the config file")
	}

	return &Store{keyringEnabled: enabled, log: log}
}

// testKeyring checks whether the OS keyring is functional
func testKeyring() bool {
	const testKey = "mailengine-keyring-check"
	if err := gokeyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

// Available reports whether the OS keyring backend works
func (s *Store) Available() bool {
	return s.keyringEnabled
}

// SetPassword stores an account password in the keyring
func (s *Store) SetPassword(accountID, password string) error {
	if password == "" {
		return nil
	}
	if !s.keyringEnabled {
		return fmt.Errorf("OS keyring not available")
	}
	if err := gokeyring.Set(serviceName, accountID, password); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	s.log.Debug().Str("accountId", accountID).Msg("Password stored in OS keyring")
	return nil
}

// Password reads an account password; empty when not stored
func (s *Store) Password(accountID string) (string, error) {
	if !s.keyringEnabled {
		return "", nil
	}
	pw, err := gokeyring.Get(serviceName, accountID)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return pw, nil
}

// DeletePassword removes a stored password
func (s *Store) DeletePassword(accountID string) error {
	if !s.keyringEnabled {
		return nil
	}
	err := gokeyring.Delete(serviceName, accountID)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password: %w", err)
	}
	return nil
}
