// Package autoconfig probes well-known autoconfig and JMAP discovery
// endpoints to derive server settings from an email address.
package autoconfig

import (
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
)

// probeTimeout bounds each individual probe
const probeTimeout = 10 * time.Second

// Result is the discovered (or guessed) server configuration
type Result struct {
	IMAPHost       string `json:"imapHost,omitempty"`
	IMAPPort       int    `json:"imapPort,omitempty"`
	IMAPSocketType string `json:"imapSocketType,omitempty"`
	SMTPHost       string `json:"smtpHost,omitempty"`
	SMTPPort       int    `json:"smtpPort,omitempty"`
	SMTPSocketType string `json:"smtpSocketType,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`

	// Guessed is true when every probe failed and the result is the
	// conventional imap./smtp. fallback.
	Guessed bool `json:"guessed,omitempty"`
}

// Resolver probes autoconfig endpoints
type Resolver struct {
	client *http.Client
	log    zerolog.Logger
}

// NewResolver creates a resolver with the standard probe policy
func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{
			Timeout: probeTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		log: logging.WithComponent("autoconfig"),
	}
}

func splitEmail(email string) (local, domain string, err error) {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", "", fmt.Errorf("invalid email address %q", email)
	}
	return email[:at], email[at+1:], nil
}

// Lookup probes the autoconfig URL ladder for an email address; the
// first parseable response wins. When every probe fails a conventional
// guess is synthesized.
func (r *Resolver) Lookup(email string) (*Result, error) {
	local, domain, err := splitEmail(email)
	if err != nil {
		return nil, err
	}

	urls := []string{
		fmt.Sprintf("https://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", domain, email),
		fmt.Sprintf("https://%s/.well-known/autoconfig/mail/config-v1.1.xml?emailaddress=%s", domain, email),
		fmt.Sprintf("http://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", domain, email),
		fmt.Sprintf("https://autoconfig.thunderbird.net/v1.1/%s", domain),
	}

	for _, u := range urls {
		body, err := r.fetch(u)
		if err != nil {
			r.log.Debug().Err(err).Str("url", u).Msg("Autoconfig probe failed")
			continue
		}
		if result := parseAutoconfigXML(body, email, domain, local); result != nil {
			r.log.Info().Str("url", u).Str("imapHost", result.IMAPHost).Msg("Autoconfig found")
			return result, nil
		}
	}

	r.log.Info().Str("domain", domain).Msg("All autoconfig probes failed, guessing conventional hosts")
	return &Result{
		IMAPHost:       "imap." + domain,
		IMAPPort:       993,
		IMAPSocketType: "SSL",
		SMTPHost:       "smtp." + domain,
		SMTPPort:       587,
		SMTPSocketType: "STARTTLS",
		Guessed:        true,
	}, nil
}

func (r *Resolver) fetch(url string) ([]byte, error) {
	resp, err := r.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("probe returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// Thunderbird-style autoconfig XML

type clientConfig struct {
	EmailProvider struct {
		DisplayName     string         `xml:"displayName"`
		IncomingServers []serverConfig `xml:"incomingServer"`
		OutgoingServers []serverConfig `xml:"outgoingServer"`
	} `xml:"emailProvider"`
}

type serverConfig struct {
	Type       string `xml:"type,attr"`
	Hostname   string `xml:"hostname"`
	Port       int    `xml:"port"`
	SocketType string `xml:"socketType"`
}

func parseAutoconfigXML(data []byte, email, domain, local string) *Result {
	var cfg clientConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil
	}

	result := &Result{DisplayName: cfg.EmailProvider.DisplayName}

	for _, srv := range cfg.EmailProvider.IncomingServers {
		if srv.Type == "imap" {
			result.IMAPHost = expandPlaceholders(srv.Hostname, email, domain, local)
			result.IMAPPort = srv.Port
			result.IMAPSocketType = srv.SocketType
			break
		}
	}
	for _, srv := range cfg.EmailProvider.OutgoingServers {
		if srv.Type == "smtp" {
			result.SMTPHost = expandPlaceholders(srv.Hostname, email, domain, local)
			result.SMTPPort = srv.Port
			result.SMTPSocketType = srv.SocketType
			break
		}
	}

	if result.IMAPHost == "" && result.SMTPHost == "" {
		return nil
	}
	return result
}

func expandPlaceholders(template, email, domain, local string) string {
	r := strings.NewReplacer(
		"%EMAILADDRESS%", email,
		"%EMAILLOCALPART%", local,
		"%EMAILDOMAIN%", domain,
	)
	return r.Replace(template)
}

// DiscoverJMAP probes the well-known JMAP endpoints for a domain. A
// probe succeeds on any 2xx whose body mentions capabilities or apiUrl,
// or whose final URL after redirects differs from the request URL.
// Returns empty when no JMAP server is found.
func (r *Resolver) DiscoverJMAP(email string) (string, error) {
	_, domain, err := splitEmail(email)
	if err != nil {
		return "", err
	}

	urls := []string{
		fmt.Sprintf("https://%s/.well-known/jmap", domain),
		fmt.Sprintf("https://mail.%s/.well-known/jmap", domain),
		fmt.Sprintf("https://jmap.%s/.well-known/jmap", domain),
	}

	for _, u := range urls {
		resp, err := r.client.Get(u)
		if err != nil {
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		finalURL := resp.Request.URL.String()
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			continue
		}

		text := string(body)
		if strings.Contains(text, "capabilities") || strings.Contains(text, "apiUrl") {
			r.log.Info().Str("url", u).Msg("JMAP server discovered")
			return u, nil
		}
		if finalURL != u {
			r.log.Info().Str("url", finalURL).Msg("JMAP server discovered via redirect")
			return finalURL, nil
		}
	}

	return "", nil
}
