// Package imap provides the IMAP session layer: a long-lived, stateful
// protocol client with folder selection, UID-based addressing, and
// MIME-aware fetches.
package imap

import (
	"context"
	"fmt"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
	"github.com/zitrone/mailengine/internal/transport"
)

// Config holds the configuration for connecting to an IMAP server
type Config struct {
	Host     string
	Port     int
	Security transport.Security
	Username string
	Password string

	// AllowSelfSigned accepts self-signed certificates (explicit
	// user-level policy).
	AllowSelfSigned bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Port:     993,
		Security: transport.SecurityTLS,
	}
}

// Client wraps the go-imap client. It is owned exclusively by the
// account registry and must not be shared across tasks.
type Client struct {
	config   Config
	client   *imapclient.Client
	caps     goimap.CapSet
	selected string
	log      zerolog.Logger
}

// NewClient creates a new IMAP client but does not connect
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		log:    logging.WithComponent("imap"),
	}
}

// Connect establishes a connection to the IMAP server and logs in
func (c *Client) Connect(ctx context.Context) error {
	tcfg := transport.Config{
		Host:            c.config.Host,
		Port:            c.config.Port,
		Security:        c.config.Security,
		AllowSelfSigned: c.config.AllowSelfSigned,
		ReadTimeout:     transport.LargeReadTimeout, // body fetches can be slow
	}

	c.log.Debug().
		Str("host", c.config.Host).
		Int("port", c.config.Port).
		Str("security", string(c.config.Security)).
		Msg("Connecting to IMAP server")

	options := &imapclient.Options{}

	switch c.config.Security {
	case transport.SecurityStartTLS:
		options.TLSConfig = tcfg.TLSConfig()
		client, err := imapclient.DialStartTLS(tcfg.Addr(), options)
		if err != nil {
			return fmt.Errorf("failed to connect with STARTTLS: %w", err)
		}
		c.client = client

	default:
		conn, err := transport.Dial(ctx, tcfg)
		if err != nil {
			return err
		}
		c.client = imapclient.New(conn, options)
	}

	if err := c.client.WaitGreeting(); err != nil {
		c.client.Close()
		c.client = nil
		return fmt.Errorf("failed to receive greeting: %w", err)
	}

	c.caps = c.client.Caps()

	if err := c.login(); err != nil {
		c.client.Close()
		c.client = nil
		return err
	}

	c.log.Info().
		Str("host", c.config.Host).
		Str("username", c.config.Username).
		Msg("Connected to IMAP server")

	return nil
}

// login authenticates with LOGIN, or AUTHENTICATE PLAIN when the
// server advertises LOGINDISABLED. A failed AUTHENTICATE can corrupt
// the wire state, so LOGIN stays the default.
func (c *Client) login() error {
	if c.caps.Has(goimap.CapLoginDisabled) {
		c.log.Debug().Msg("LOGIN disabled, using AUTHENTICATE PLAIN")
		saslClient := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := c.client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	} else {
		if err := c.client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	// Capabilities may change after login
	c.caps = c.client.Caps()
	return nil
}

// Close logs out and closes the connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.log.Debug().Msg("Closing IMAP connection")
	if err := c.client.Logout().Wait(); err != nil {
		c.log.Warn().Err(err).Msg("Logout failed, closing anyway")
	}

	err := c.client.Close()
	c.client = nil
	c.selected = ""
	return err
}

// Connected reports whether the session holds a live connection
func (c *Client) Connected() bool {
	return c.client != nil
}

// HasCap checks if the server supports a capability
func (c *Client) HasCap(cap goimap.Cap) bool {
	return c.caps.Has(cap)
}

// Username returns the account username this session is bound to
func (c *Client) Username() string {
	return c.config.Username
}

func (c *Client) ensureConnected() error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return nil
}
