// Package transport provides TCP/TLS dialing with per-operation
// deadlines for the protocol clients.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Security represents the connection security method
type Security string

const (
	SecurityNone     Security = "none"
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
)

// Default timeouts per the engine's resource model
const (
	ConnectTimeout   = 30 * time.Second
	ReadTimeout      = 30 * time.Second
	LargeReadTimeout = 120 * time.Second
	WriteTimeout     = 30 * time.Second
)

// Config holds dialing parameters for a protocol connection
type Config struct {
	Host     string
	Port     int
	Security Security

	// AllowSelfSigned skips certificate verification. This is an
	// explicit user-level policy, not a default.
	AllowSelfSigned bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Addr returns the host:port dial address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSConfig builds the tls.Config for this connection
func (c Config) TLSConfig() *tls.Config {
	return &tls.Config{
		ServerName:         c.Host,
		InsecureSkipVerify: c.AllowSelfSigned,
	}
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = WriteTimeout
	}
	return c
}

// DeadlineConn wraps a net.Conn to automatically set read/write
// deadlines before each operation. This prevents indefinite blocking on
// slow or dead connections for protocol libraries without built-in
// timeouts.
type DeadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Read sets a read deadline before reading
func (c *DeadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

// Write sets a write deadline before writing
func (c *DeadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// SetReadTimeout adjusts the per-read deadline, e.g. for large fetches
func (c *DeadlineConn) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
}

// Dial establishes a connection per the config. For SecurityTLS the TLS
// handshake happens immediately; for SecurityStartTLS and SecurityNone
// the returned conn is plain TCP and the caller drives the upgrade
// (STARTTLS is protocol-specific).
func Dial(ctx context.Context, cfg Config) (*DeadlineConn, error) {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	var conn net.Conn
	var err error
	if cfg.Security == SecurityTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: cfg.TLSConfig()}
		conn, err = td.DialContext(ctx, "tcp", cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect with TLS: %w", err)
		}
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
	}

	return &DeadlineConn{
		Conn:         conn,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

// UpgradeTLS performs the TLS handshake over an already-established
// plain connection (after a protocol-level STARTTLS exchange).
func UpgradeTLS(conn *DeadlineConn, cfg Config) (*DeadlineConn, error) {
	tlsConn := tls.Client(conn.Conn, cfg.TLSConfig())
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("TLS upgrade failed: %w", err)
	}
	return &DeadlineConn{
		Conn:         tlsConn,
		readTimeout:  conn.readTimeout,
		writeTimeout: conn.writeTimeout,
	}, nil
}
