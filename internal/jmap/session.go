package jmap

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxRedirects bounds the discovery redirect chain
const maxRedirects = 10

// Session is the discovered JMAP session: resolved endpoint URLs, the
// primary account id, and the hosts visited while following the
// discovery redirect chain. Only those hosts are trusted for
// subsequent requests.
type Session struct {
	APIURL       string
	DownloadURL  string
	UploadURL    string
	AccountID    string
	TrustedHosts []string
	Capabilities map[string]json.RawMessage
}

// Trusts reports whether host was visited during discovery
func (s *Session) Trusts(host string) bool {
	for _, h := range s.TrustedHosts {
		if h == host {
			return true
		}
	}
	return false
}

type sessionDocument struct {
	APIURL          string                     `json:"apiUrl"`
	DownloadURL     string                     `json:"downloadUrl"`
	UploadURL       string                     `json:"uploadUrl"`
	Capabilities    map[string]json.RawMessage `json:"capabilities"`
	Accounts        map[string]json.RawMessage `json:"accounts"`
	PrimaryAccounts map[string]string          `json:"primaryAccounts"`
}

// discover fetches the session document from the well-known endpoint,
// following redirects up to maxRedirects and recording every host in
// the chain as trusted.
func discover(baseURL, username, password string, allowSelfSigned bool, timeout time.Duration) (*Session, error) {
	wellKnown, err := normalizeDiscoveryURL(baseURL)
	if err != nil {
		return nil, err
	}

	var visited []string
	recordHost := func(u *url.URL) {
		host := u.Hostname()
		for _, h := range visited {
			if h == host {
				return
			}
		}
		visited = append(visited, host)
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: allowSelfSigned},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			recordHost(req.URL)
			// Credentials must follow the chain for cross-host session
			// documents behind auth.
			req.SetBasicAuth(username, password)
			return nil
		},
	}

	req, err := http.NewRequest(http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery URL: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Accept", "application/json")
	recordHost(req.URL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JMAP session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("authentication failed: JMAP server returned %s", resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("JMAP server returned error: %s", resp.Status)
	}

	finalURL := resp.Request.URL
	recordHost(finalURL)

	var doc sessionDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JMAP session: %w", err)
	}
	if doc.APIURL == "" {
		return nil, fmt.Errorf("missing apiUrl in JMAP session document")
	}

	apiURL, err := resolveURL(finalURL, doc.APIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve apiUrl: %w", err)
	}
	downloadURL, _ := resolveURL(finalURL, doc.DownloadURL)
	uploadURL, _ := resolveURL(finalURL, doc.UploadURL)

	// API host joins the trusted set
	if u, err := url.Parse(apiURL); err == nil {
		recordHost(u)
	}

	session := &Session{
		APIURL:       apiURL,
		DownloadURL:  downloadURL,
		UploadURL:    uploadURL,
		TrustedHosts: visited,
		Capabilities: doc.Capabilities,
	}

	// Primary account: the mail capability entry, else the first
	// account key.
	if id, ok := doc.PrimaryAccounts[CapMail]; ok {
		session.AccountID = id
	} else {
		for id := range doc.Accounts {
			session.AccountID = id
			break
		}
	}
	if session.AccountID == "" {
		return nil, fmt.Errorf("JMAP session document names no accounts")
	}

	return session, nil
}

// normalizeDiscoveryURL accepts a base URL with or without a trailing
// /.well-known/jmap and returns the well-known URL to fetch.
func normalizeDiscoveryURL(baseURL string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/.well-known/jmap")
	base = strings.TrimSuffix(base, ".well-known/jmap")
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", fmt.Errorf("empty JMAP discovery URL")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + "/.well-known/jmap", nil
}

// resolveURL resolves ref (possibly relative) against the final URL of
// the discovery chain.
func resolveURL(final *url.URL, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return final.ResolveReference(u).String(), nil
}
