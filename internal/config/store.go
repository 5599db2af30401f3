// Package config persists account records and engine settings as a
// JSON document in the platform config directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
)

// Protocol identifies which session layer an account uses
type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolJMAP Protocol = "jmap"
)

// Signature is a reusable signature block
type Signature struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	IsDefault bool   `json:"isDefault"`
}

// VacationSettings configures the auto-reply rule
type VacationSettings struct {
	Enabled   bool   `json:"enabled"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// CachePolicy controls the local message cache for an account.
// RetentionDays of 0 means unbounded.
type CachePolicy struct {
	Enabled          bool `json:"enabled"`
	RetentionDays    uint32 `json:"retentionDays"`
	CacheBodies      bool `json:"cacheBodies"`
	CacheAttachments bool `json:"cacheAttachments"`
}

// Account is a persisted account record. Optional fields tolerate
// legacy documents that predate them. The password is only serialized
// when the user opts in; otherwise the UI prompts per session.
type Account struct {
	ID          string   `json:"id"`
	Protocol    Protocol `json:"protocol"`
	DisplayName string   `json:"displayName"`
	Username    string   `json:"username"`

	IMAPHost string `json:"imapHost,omitempty"`
	IMAPPort int    `json:"imapPort,omitempty"`
	SMTPHost string `json:"smtpHost,omitempty"`
	SMTPPort int    `json:"smtpPort,omitempty"`
	JMAPURL  string `json:"jmapUrl,omitempty"`

	Password string `json:"password,omitempty"`

	Cache      *CachePolicy      `json:"cache,omitempty"`
	Signatures []Signature       `json:"signatures,omitempty"`
	Vacation   *VacationSettings `json:"vacation,omitempty"`
}

// Document is the on-disk shape of accounts.json. The AI provider
// configuration is carried opaquely.
type Document struct {
	Accounts []Account       `json:"accounts"`
	AI       json.RawMessage `json:"ai,omitempty"`
}

// Store reads and writes the accounts document
type Store struct {
	path string
	log  zerolog.Logger
}

// NewStore creates a store rooted at the platform config directory
func NewStore() (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("could not find config directory: %w", err)
	}
	dir := filepath.Join(base, "MailClient")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "accounts.json")), nil
}

// NewStoreAt creates a store with an explicit file path (used by tests)
func NewStoreAt(path string) *Store {
	return &Store{
		path: path,
		log:  logging.WithComponent("config"),
	}
}

// Load reads the document; a missing file yields an empty document
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &doc, nil
}

// save serializes pretty-printed and writes via temp-file rename
func (s *Store) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Accounts returns all persisted accounts
func (s *Store) Accounts() ([]Account, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

// SaveAccount upserts an account by id
func (s *Store) SaveAccount(account Account) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}

	updated := false
	for i := range doc.Accounts {
		if doc.Accounts[i].ID == account.ID {
			doc.Accounts[i] = account
			updated = true
			break
		}
	}
	if !updated {
		doc.Accounts = append(doc.Accounts, account)
	}

	if err := s.save(doc); err != nil {
		return err
	}
	s.log.Debug().Str("accountId", account.ID).Bool("updated", updated).Msg("Account saved")
	return nil
}

// DeleteAccount removes an account by id; deleting an unknown id is not
// an error.
func (s *Store) DeleteAccount(accountID string) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}

	kept := doc.Accounts[:0]
	for _, a := range doc.Accounts {
		if a.ID != accountID {
			kept = append(kept, a)
		}
	}
	doc.Accounts = kept

	return s.save(doc)
}

// SetAIConfig replaces the opaque AI provider configuration
func (s *Store) SetAIConfig(raw json.RawMessage) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	doc.AI = raw
	return s.save(doc)
}

// AIConfig returns the opaque AI provider configuration
func (s *Store) AIConfig() (json.RawMessage, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.AI, nil
}
