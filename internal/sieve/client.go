// Package sieve manages server-side filter scripts: a ManageSieve
// (RFC 5804) client plus the bijection between visual rules and Sieve
// script text.
package sieve

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
	"github.com/zitrone/mailengine/internal/transport"
)

// Script is a stored script as reported by LISTSCRIPTS
type Script struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Client speaks the ManageSieve protocol over a dedicated TCP port
type Client struct {
	host   string
	port   int
	config transport.Config
	conn   *transport.DeadlineConn
	r      *bufio.Reader
	log    zerolog.Logger
}

// NewClient creates a ManageSieve client (conventionally port 4190)
func NewClient(host string, port int, allowSelfSigned bool) *Client {
	return &Client{
		host: host,
		port: port,
		config: transport.Config{
			Host:            host,
			Port:            port,
			Security:        transport.SecurityStartTLS,
			AllowSelfSigned: allowSelfSigned,
		},
		log: logging.WithComponent("sieve"),
	}
}

// Connect dials the server, upgrades via STARTTLS when advertised, and
// authenticates with SASL PLAIN.
func (c *Client) Connect(ctx context.Context, username, password string) error {
	conn, err := transport.Dial(ctx, c.config)
	if err != nil {
		return err
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)

	caps, err := c.readCapabilities()
	if err != nil {
		c.close()
		return fmt.Errorf("failed to read greeting: %w", err)
	}

	if capsHave(caps, "STARTTLS") {
		if err := c.startTLS(); err != nil {
			c.close()
			return err
		}
		// Server re-announces capabilities after the upgrade
		if _, err := c.readCapabilities(); err != nil {
			c.close()
			return fmt.Errorf("failed to re-read capabilities: %w", err)
		}
	}

	if err := c.authenticate(username, password); err != nil {
		c.close()
		return err
	}

	c.log.Info().Str("host", c.host).Msg("ManageSieve session established")
	return nil
}

func capsHave(caps []string, name string) bool {
	for _, c := range caps {
		if strings.Contains(strings.ToUpper(c), name) {
			return true
		}
	}
	return false
}

// readCapabilities consumes capability lines until the OK terminator
func (c *Client) readCapabilities() ([]string, error) {
	var caps []string
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "OK"):
			return caps, nil
		case strings.HasPrefix(trimmed, "NO"), strings.HasPrefix(trimmed, "BYE"):
			return nil, fmt.Errorf("server refused: %s", trimmed)
		case trimmed != "":
			caps = append(caps, trimmed)
		}
	}
}

func (c *Client) startTLS() error {
	if err := c.writeLine("STARTTLS"); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("STARTTLS refused: %s", resp)
	}

	upgraded, err := transport.UpgradeTLS(c.conn, c.config)
	if err != nil {
		return err
	}
	c.conn = upgraded
	c.r = bufio.NewReader(upgraded)
	return nil
}

// authenticate performs AUTHENTICATE "PLAIN" with the initial response
// inline: base64 of the SASL PLAIN \0user\0pass payload.
func (c *Client) authenticate(username, password string) error {
	_, ir, err := sasl.NewPlainClient("", username, password).Start()
	if err != nil {
		return fmt.Errorf("failed to build SASL payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(ir)

	if err := c.writeLine(fmt.Sprintf("AUTHENTICATE \"PLAIN\" \"%s\"", encoded)); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("authentication failed: %s", resp)
	}
	return nil
}

// Close logs out and releases the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeLine("LOGOUT")
	c.readResponse()
	return c.close()
}

func (c *Client) close() error {
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

// ListScripts returns the stored scripts and their active flag
func (c *Client) ListScripts() ([]Script, error) {
	if err := c.writeLine("LISTSCRIPTS"); err != nil {
		return nil, err
	}

	var scripts []Script
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "OK"):
			return scripts, nil
		case strings.HasPrefix(trimmed, "NO"), strings.HasPrefix(trimmed, "BYE"):
			return nil, fmt.Errorf("LISTSCRIPTS failed: %s", trimmed)
		case strings.HasPrefix(trimmed, `"`):
			if end := strings.Index(trimmed[1:], `"`); end >= 0 {
				scripts = append(scripts, Script{
					Name:   trimmed[1 : 1+end],
					Active: strings.Contains(trimmed[1+end:], "ACTIVE"),
				})
			}
		}
	}
}

// GetScript fetches the content of a script. The server answers with a
// {N} literal followed by N bytes of script text.
func (c *Client) GetScript(name string) (string, error) {
	if err := c.writeLine(fmt.Sprintf("GETSCRIPT %q", name)); err != nil {
		return "", err
	}

	var content strings.Builder
	remaining := -1

	for {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		trimmed := strings.TrimSpace(line)

		if remaining <= 0 {
			switch {
			case strings.HasPrefix(trimmed, "OK"):
				return strings.TrimRight(content.String(), "\r\n"), nil
			case strings.HasPrefix(trimmed, "NO"), strings.HasPrefix(trimmed, "BYE"):
				return "", fmt.Errorf("GETSCRIPT failed: %s", trimmed)
			case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
				size, err := strconv.Atoi(strings.Trim(trimmed, "{}+"))
				if err != nil {
					return "", fmt.Errorf("malformed literal header %q", trimmed)
				}
				remaining = size
			}
			continue
		}

		content.WriteString(line)
		remaining -= len(line)
	}
}

// PutScript uploads a script with a non-synchronizing {N+} literal
func (c *Client) PutScript(name, content string) error {
	cmd := fmt.Sprintf("PUTSCRIPT %q {%d+}\r\n%s", name, len(content), content)
	if err := c.writeLine(cmd); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("PUTSCRIPT failed: %s", resp)
	}
	return nil
}

// SetActive activates a script; an empty name deactivates all scripts.
// Activation is mutually exclusive server-side.
func (c *Client) SetActive(name string) error {
	if err := c.writeLine(fmt.Sprintf("SETACTIVE %q", name)); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("SETACTIVE failed: %s", resp)
	}
	return nil
}

// DeleteScript removes a stored script
func (c *Client) DeleteScript(name string) error {
	if err := c.writeLine(fmt.Sprintf("DELETESCRIPT %q", name)); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("DELETESCRIPT failed: %s", resp)
	}
	return nil
}

func (c *Client) writeLine(line string) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func (c *Client) readLine() (string, error) {
	if c.r == nil {
		return "", fmt.Errorf("not connected")
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	return line, nil
}

// readResponse skips to the next OK/NO/BYE status line
func (c *Client) readResponse() (string, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "OK") ||
			strings.HasPrefix(trimmed, "NO") ||
			strings.HasPrefix(trimmed, "BYE") {
			return trimmed, nil
		}
	}
}
