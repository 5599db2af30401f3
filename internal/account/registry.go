// Package account holds the process-wide registry of live protocol
// sessions and the string-keyed command surface the UI process drives.
package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/ai"
	"github.com/zitrone/mailengine/internal/cache"
	"github.com/zitrone/mailengine/internal/config"
	"github.com/zitrone/mailengine/internal/credentials"
	"github.com/zitrone/mailengine/internal/imap"
	"github.com/zitrone/mailengine/internal/jmap"
	"github.com/zitrone/mailengine/internal/logging"
	"github.com/zitrone/mailengine/internal/smtp"
	"github.com/zitrone/mailengine/internal/transport"
)

// imapSession pins one connected IMAP account: the session, its
// record, and its cache (nil when caching is disabled).
type imapSession struct {
	client  *imap.Client
	account config.Account
	cache   *cache.Cache
}

type jmapSession struct {
	client  *jmap.Client
	account config.Account
	cache   *cache.Cache
}

// Registry is the process-wide map of connected accounts. Sessions are
// owned uniquely; the mutex guards the maps only and is released
// before any wire I/O.
type Registry struct {
	mu           sync.Mutex
	imapSessions map[string]*imapSession
	jmapSessions map[string]*jmapSession

	config     *config.Store
	creds      *credentials.Store
	aiProvider ai.Provider
	log        zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(cfg *config.Store, creds *credentials.Store) *Registry {
	return &Registry{
		imapSessions: make(map[string]*imapSession),
		jmapSessions: make(map[string]*jmapSession),
		config:       cfg,
		creds:        creds,
		log:          logging.WithComponent("registry"),
	}
}

// AccountID derives the registry key for an account record. IMAP
// accounts are keyed by raw username, JMAP accounts by "jmap_" +
// username. This namespace is observable in account status reports.
func AccountID(acc config.Account) string {
	if acc.Protocol == config.ProtocolJMAP {
		return "jmap_" + acc.Username
	}
	return acc.Username
}

// resolvePassword reads the credential for an account: the keyring
// first, then the opt-in config field.
func (r *Registry) resolvePassword(acc config.Account) (string, error) {
	if r.creds != nil {
		if pw, err := r.creds.Password(AccountID(acc)); err == nil && pw != "" {
			return pw, nil
		}
	}
	if acc.Password != "" {
		return acc.Password, nil
	}
	return "", fmt.Errorf("no credential stored for %s; the caller must supply one", acc.Username)
}

// openCache opens the account cache when its policy enables caching
func (r *Registry) openCache(acc config.Account) *cache.Cache {
	if acc.Cache == nil || !acc.Cache.Enabled {
		return nil
	}
	c, err := cache.Open(AccountID(acc))
	if err != nil {
		r.log.Error().Err(err).Str("accountId", AccountID(acc)).Msg("Failed to open cache, continuing without")
		return nil
	}
	return c
}

// Connect establishes a session for the account. An existing session
// for the same account id is destroyed first (at most one session per
// account, I5).
func (r *Registry) Connect(ctx context.Context, acc config.Account, password string) (string, error) {
	accountID := AccountID(acc)

	if password == "" {
		var err error
		password, err = r.resolvePassword(acc)
		if err != nil {
			return "", err
		}
	}

	// Reconnect destroys and recreates
	r.Disconnect(accountID)

	switch acc.Protocol {
	case config.ProtocolJMAP:
		client := jmap.NewClient(jmap.Config{
			URL:             acc.JMAPURL,
			Username:        acc.Username,
			Password:        password,
			AllowSelfSigned: true,
		})
		if err := client.Connect(ctx); err != nil {
			return "", err
		}

		session := &jmapSession{client: client, account: acc, cache: r.openCache(acc)}
		r.mu.Lock()
		r.jmapSessions[accountID] = session
		r.mu.Unlock()

	default:
		cfg := imap.DefaultConfig()
		cfg.Host = acc.IMAPHost
		cfg.Port = acc.IMAPPort
		cfg.Username = acc.Username
		cfg.Password = password
		cfg.AllowSelfSigned = true
		if acc.IMAPPort == 143 {
			cfg.Security = transport.SecurityStartTLS
		}

		client := imap.NewClient(cfg)
		if err := client.Connect(ctx); err != nil {
			return "", err
		}

		session := &imapSession{client: client, account: acc, cache: r.openCache(acc)}
		r.mu.Lock()
		r.imapSessions[accountID] = session
		r.mu.Unlock()
	}

	r.log.Info().Str("accountId", accountID).Str("protocol", string(acc.Protocol)).Msg("Account connected")
	return accountID, nil
}

// Disconnect destroys the session for an account id, releasing its
// transport and cache. Unknown ids are a no-op.
func (r *Registry) Disconnect(accountID string) {
	r.mu.Lock()
	is := r.imapSessions[accountID]
	js := r.jmapSessions[accountID]
	delete(r.imapSessions, accountID)
	delete(r.jmapSessions, accountID)
	r.mu.Unlock()

	if is != nil {
		is.client.Close()
		if is.cache != nil {
			is.cache.Close()
		}
		r.log.Info().Str("accountId", accountID).Msg("IMAP account disconnected")
	}
	if js != nil {
		js.client.Close()
		if js.cache != nil {
			js.cache.Close()
		}
		r.log.Info().Str("accountId", accountID).Msg("JMAP account disconnected")
	}
}

// DisconnectAll tears down every session, e.g. at process shutdown
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.imapSessions)+len(r.jmapSessions))
	for id := range r.imapSessions {
		ids = append(ids, id)
	}
	for id := range r.jmapSessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Disconnect(id)
	}
}

// borrowIMAP hands out a session reference. The registry lock is
// released before the caller performs wire I/O.
func (r *Registry) borrowIMAP(accountID string) (*imapSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.imapSessions[accountID]
	if !ok {
		return nil, fmt.Errorf("no connected IMAP account %q", accountID)
	}
	return s, nil
}

func (r *Registry) borrowJMAP(accountID string) (*jmapSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.jmapSessions[accountID]
	if !ok {
		return nil, fmt.Errorf("no connected JMAP account %q", accountID)
	}
	return s, nil
}

// dropIfDead removes a session whose transport collapsed. The caller
// initiates a fresh connect; there is no automatic reconnection.
func (r *Registry) dropIfDead(accountID string) {
	r.mu.Lock()
	is := r.imapSessions[accountID]
	r.mu.Unlock()
	if is != nil && !is.client.Connected() {
		r.Disconnect(accountID)
	}
}

// ChannelStatus reports one protocol channel of an account
type ChannelStatus struct {
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
}

// Status describes one account's live channels
type Status struct {
	AccountID string          `json:"accountId"`
	Protocol  string          `json:"protocol"`
	Channels  []ChannelStatus `json:"channels"`
}

// AccountStatus enumerates the protocol channels of every connected
// account. SMTP is stateless per-send and always reported available.
func (r *Registry) AccountStatus() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]Status, 0, len(r.imapSessions)+len(r.jmapSessions))
	for id, s := range r.imapSessions {
		statuses = append(statuses, Status{
			AccountID: id,
			Protocol:  string(config.ProtocolIMAP),
			Channels: []ChannelStatus{
				{Channel: "imap", Connected: s.client.Connected()},
				{Channel: "smtp", Connected: true},
			},
		})
	}
	for id, s := range r.jmapSessions {
		statuses = append(statuses, Status{
			AccountID: id,
			Protocol:  string(config.ProtocolJMAP),
			Channels: []ChannelStatus{
				{Channel: "jmap", Connected: s.client.Connected()},
				{Channel: "smtp", Connected: true},
			},
		})
	}
	return statuses
}

// smtpClient builds the per-send SMTP client for an IMAP account
func (s *imapSession) smtpClient(password string) *smtp.Client {
	cfg := smtp.DefaultConfig()
	cfg.Host = s.account.SMTPHost
	cfg.Port = s.account.SMTPPort
	cfg.Username = s.account.Username
	cfg.Password = password
	cfg.AllowSelfSigned = true
	return smtp.NewClient(cfg)
}

// SaveAccount persists an account record. An opted-in password goes to
// the OS keyring when one is available; the config file then stays free
// of the secret. Without a keyring the opt-in field is kept in the file
// as the documented fallback.
func (r *Registry) SaveAccount(acc config.Account) error {
	if acc.Password != "" && r.creds != nil && r.creds.Available() {
		if err := r.creds.SetPassword(AccountID(acc), acc.Password); err != nil {
			r.log.Warn().Err(err).Str("accountId", AccountID(acc)).Msg("Keyring write failed, keeping password in config file")
		} else {
			acc.Password = ""
		}
	}
	return r.config.SaveAccount(acc)
}

// DeleteAccount removes a persisted account record and any credential
// stored for it.
func (r *Registry) DeleteAccount(recordID string) error {
	accounts, err := r.config.Accounts()
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if acc.ID != recordID {
			continue
		}
		if r.creds != nil {
			if err := r.creds.DeletePassword(AccountID(acc)); err != nil {
				r.log.Warn().Err(err).Str("accountId", AccountID(acc)).Msg("Failed to remove stored credential")
			}
		}
		break
	}
	return r.config.DeleteAccount(recordID)
}

// StoreCredential writes a password under the account's registry id
// (AccountID(acc)) directly, for callers that prompt per session and
// then opt in.
func (r *Registry) StoreCredential(acc config.Account, password string) error {
	if r.creds == nil || !r.creds.Available() {
		return fmt.Errorf("OS keyring not available")
	}
	return r.creds.SetPassword(AccountID(acc), password)
}

// StartRetentionSweeper runs periodic cache retention cleanup for every
// connected account until the context is cancelled.
func (r *Registry) StartRetentionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.log.Debug().Dur("interval", interval).Msg("Retention sweeper started")
		for {
			select {
			case <-ticker.C:
				r.sweepOnce()
			case <-ctx.Done():
				r.log.Debug().Msg("Retention sweeper stopped")
				return
			}
		}
	}()
}

func (r *Registry) sweepOnce() {
	type target struct {
		id    string
		cache *cache.Cache
		days  uint32
	}

	r.mu.Lock()
	var targets []target
	for id, s := range r.imapSessions {
		if s.cache != nil && s.account.Cache != nil {
			targets = append(targets, target{id, s.cache, s.account.Cache.RetentionDays})
		}
	}
	for id, s := range r.jmapSessions {
		if s.cache != nil && s.account.Cache != nil {
			targets = append(targets, target{id, s.cache, s.account.Cache.RetentionDays})
		}
	}
	r.mu.Unlock()

	for _, t := range targets {
		n, err := t.cache.CleanupOld(t.days)
		if err != nil {
			r.log.Error().Err(err).Str("accountId", t.id).Msg("Retention cleanup failed")
			continue
		}
		if n > 0 {
			r.log.Info().Str("accountId", t.id).Uint32("removed", n).Msg("Retention cleanup removed cached mail")
		}
	}
}
