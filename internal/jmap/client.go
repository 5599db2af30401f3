// Package jmap implements the JMAP session layer: discovery of the
// session document, batched method calls, blob transfer, email
// submission, and Sieve script management (RFC 8620 / RFC 8621).
package jmap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
)

// Config holds the configuration for connecting to a JMAP server
type Config struct {
	// URL is the discovery base URL, with or without the trailing
	// /.well-known/jmap.
	URL      string
	Username string
	Password string

	// AllowSelfSigned accepts self-signed certificates (explicit
	// user-level policy).
	AllowSelfSigned bool

	Timeout time.Duration
}

// Client is a JMAP session. It is owned exclusively by the account
// registry and must not be shared across tasks.
type Client struct {
	config  Config
	session *Session
	http    *http.Client
	log     zerolog.Logger
	callSeq int
}

// NewClient creates a new JMAP client but does not connect
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		log:    logging.WithComponent("jmap"),
	}
}

// Connect performs session discovery and prepares the HTTP client.
// Subsequent requests only follow redirects to hosts visited during
// discovery.
func (c *Client) Connect(ctx context.Context) error {
	session, err := discover(c.config.URL, c.config.Username, c.config.Password, c.config.AllowSelfSigned, c.config.Timeout)
	if err != nil {
		return err
	}
	c.session = session

	c.http = &http.Client{
		Timeout: c.config.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: c.config.AllowSelfSigned},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if !session.Trusts(req.URL.Hostname()) {
				return fmt.Errorf("redirect to untrusted host %q", req.URL.Hostname())
			}
			req.SetBasicAuth(c.config.Username, c.config.Password)
			return nil
		},
	}

	c.log.Info().
		Str("apiUrl", session.APIURL).
		Str("accountId", session.AccountID).
		Strs("trustedHosts", session.TrustedHosts).
		Msg("JMAP session established")

	return nil
}

// Close releases the session
func (c *Client) Close() error {
	c.session = nil
	c.http = nil
	return nil
}

// Connected reports whether discovery has completed
func (c *Client) Connected() bool {
	return c.session != nil
}

// Username returns the account username this session is bound to
func (c *Client) Username() string {
	return c.config.Username
}

// AccountID returns the primary JMAP account id
func (c *Client) AccountID() (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("not connected")
	}
	return c.session.AccountID, nil
}

// Invocation is a single method call [Name, Args, ClientID] in the
// batched request envelope.
type Invocation struct {
	Name     string
	Args     any
	ClientID string
}

// MarshalJSON encodes the invocation as a 3-element array
func (inv Invocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{inv.Name, inv.Args, inv.ClientID})
}

// Result is a single method response [Name, Data, ClientID]
type Result struct {
	Name     string
	Data     json.RawMessage
	ClientID string
}

// UnmarshalJSON decodes the 3-element response array
func (r *Result) UnmarshalJSON(data []byte) error {
	var arr [3]json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[0], &r.Name); err != nil {
		return err
	}
	r.Data = arr[1]
	return json.Unmarshal(arr[2], &r.ClientID)
}

// Err surfaces a per-call ["error", {type, description}, id] response
// as an error; nil otherwise.
func (r *Result) Err() error {
	if r.Name != "error" {
		return nil
	}
	var e struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(r.Data, &e); err != nil {
		return fmt.Errorf("JMAP method error (unparseable): %s", string(r.Data))
	}
	if e.Description != "" {
		return fmt.Errorf("JMAP error: %s - %s", e.Type, e.Description)
	}
	return fmt.Errorf("JMAP error: %s", e.Type)
}

type requestEnvelope struct {
	Using       []string     `json:"using"`
	MethodCalls []Invocation `json:"methodCalls"`
}

type responseEnvelope struct {
	MethodResponses []Result `json:"methodResponses"`
}

// Call POSTs a batch of method calls and returns the ordered results.
// All non-blob operations go through this single entry point.
func (c *Client) Call(ctx context.Context, using []string, calls ...Invocation) ([]Result, error) {
	if c.session == nil {
		return nil, fmt.Errorf("not connected")
	}
	if len(using) == 0 {
		using = []string{CapCore, CapMail}
	}

	body, err := json.Marshal(requestEnvelope{Using: using, MethodCalls: calls})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JMAP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("authentication failed: %s", resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("JMAP server returned %s: %s", resp.Status, string(text))
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return envelope.MethodResponses, nil
}

// findResult picks the first method response matching name, surfacing a
// positional error response instead when present.
func findResult(results []Result, name string) (*Result, error) {
	for i := range results {
		r := &results[i]
		if r.Name == name {
			return r, nil
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("response %q missing from method responses", name)
}

func (c *Client) nextCallID() string {
	c.callSeq++
	return fmt.Sprintf("c%d", c.callSeq)
}
