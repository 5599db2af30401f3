package smtp

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
	"github.com/zitrone/mailengine/internal/transport"
)

// Config holds the configuration for the SMTP submission client.
// Submission is stateless per send; a fresh connection is dialed for
// every message.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// AllowSelfSigned accepts self-signed certificates (explicit
	// user-level policy).
	AllowSelfSigned bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{Port: 587}
}

// Client submits messages over SMTP
type Client struct {
	config Config
	log    zerolog.Logger
}

// NewClient creates a new SMTP client
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		log:    logging.WithComponent("smtp"),
	}
}

// Send validates, serializes, and submits the message, returning the
// raw serialized bytes so the caller can append them to the Sent folder
// over IMAP.
func (c *Client) Send(msg *ComposeMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	raw, err := msg.ToRFC822()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	tcfg := transport.Config{
		Host:            c.config.Host,
		Port:            c.config.Port,
		AllowSelfSigned: c.config.AllowSelfSigned,
	}
	addr := tcfg.Addr()

	c.log.Debug().
		Str("host", c.config.Host).
		Int("port", c.config.Port).
		Int("size", len(raw)).
		Msg("Submitting message")

	// Port 465 speaks TLS from the first byte; everything else
	// upgrades mid-conversation, and the upgrade is required.
	var conn *gosmtp.Client
	if c.config.Port == 465 {
		conn, err = gosmtp.DialTLS(addr, tcfg.TLSConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect with TLS: %w", err)
		}
	} else {
		conn, err = gosmtp.DialStartTLS(addr, tcfg.TLSConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect with STARTTLS: %w", err)
		}
	}
	defer conn.Close()

	auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
	if err := conn.Auth(auth); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if err := conn.SendMail(c.config.Username, msg.AllRecipients(), bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if err := conn.Quit(); err != nil {
		c.log.Warn().Err(err).Msg("QUIT failed after successful send")
	}

	c.log.Info().
		Int("recipients", len(msg.AllRecipients())).
		Msg("Message sent")

	return raw, nil
}
