package jmap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sessionHandler(apiPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jmap" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"apiUrl":      apiPath,
			"downloadUrl": "/download/{accountId}/{blobId}/{name}",
			"uploadUrl":   "/upload/{accountId}",
			"accounts": map[string]any{
				"acc1": map[string]any{},
			},
			"primaryAccounts": map[string]string{
				CapMail: "acc1",
			},
		})
	}
}

func TestDiscoverDirect(t *testing.T) {
	srv := httptest.NewServer(sessionHandler("/jmap"))
	defer srv.Close()

	session, err := discover(srv.URL, "user", "pass", false, 5*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if session.APIURL != srv.URL+"/jmap" {
		t.Errorf("APIURL = %q, want %q", session.APIURL, srv.URL+"/jmap")
	}
	if session.AccountID != "acc1" {
		t.Errorf("AccountID = %q", session.AccountID)
	}
	if !session.Trusts("127.0.0.1") {
		t.Errorf("trusted hosts = %v", session.TrustedHosts)
	}
}

func TestDiscoverTrailingWellKnown(t *testing.T) {
	srv := httptest.NewServer(sessionHandler("/jmap"))
	defer srv.Close()

	// A URL already ending in /.well-known/jmap must not double up
	session, err := discover(srv.URL+"/.well-known/jmap", "user", "pass", false, 5*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if session.APIURL != srv.URL+"/jmap" {
		t.Errorf("APIURL = %q", session.APIURL)
	}
}

func TestDiscoverFollowsRedirectAndResolvesAgainstFinalURL(t *testing.T) {
	target := httptest.NewServer(sessionHandler("/jmap"))
	defer target.Close()

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/.well-known/jmap", http.StatusMovedPermanently)
	}))
	defer front.Close()

	session, err := discover(front.URL, "user", "pass", false, 5*time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	// The relative apiUrl resolves against the final (post-redirect) URL
	if session.APIURL != target.URL+"/jmap" {
		t.Errorf("APIURL = %q, want %q", session.APIURL, target.URL+"/jmap")
	}
}

func TestDiscoverRedirectLoopBounded(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/.well-known/jmap", http.StatusFound)
	}))
	defer srv.Close()

	if _, err := discover(srv.URL, "user", "pass", false, 5*time.Second); err == nil {
		t.Fatal("expected bounded redirect chain to fail")
	}
}

func TestDiscoverMissingAPIURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"accounts": {"a": {}}}`)
	}))
	defer srv.Close()

	if _, err := discover(srv.URL, "user", "pass", false, 5*time.Second); err == nil {
		t.Fatal("expected error for missing apiUrl")
	}
}

func TestNormalizeDiscoveryURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com", "https://example.com/.well-known/jmap"},
		{"https://example.com/", "https://example.com/.well-known/jmap"},
		{"https://example.com/.well-known/jmap", "https://example.com/.well-known/jmap"},
		{"example.com", "https://example.com/.well-known/jmap"},
	}
	for _, tt := range tests {
		got, err := normalizeDiscoveryURL(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("normalizeDiscoveryURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("/.well-known/jmap", sessionHandler("/jmap"))
	mux.Handle("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(Config{URL: srv.URL, Username: "user@example.com", Password: "pw"})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client, srv
}

func TestCallBatchingAndErrorSurfacing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jmap" {
			http.NotFound(w, r)
			return
		}

		var envelope struct {
			Using       []string          `json:"using"`
			MethodCalls [][3]json.RawMessage `json:"methodCalls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			t.Errorf("bad envelope: %v", err)
		}
		if len(envelope.MethodCalls) != 2 {
			t.Errorf("methodCalls = %d, want 2", len(envelope.MethodCalls))
		}

		fmt.Fprint(w, `{"methodResponses": [
			["Mailbox/get", {"list": []}, "c1"],
			["error", {"type": "serverFail", "description": "boom"}, "c2"]
		]}`)
	}))

	results, err := client.Call(context.Background(), nil,
		Invocation{Name: "Mailbox/get", Args: map[string]any{}, ClientID: "c1"},
		Invocation{Name: "Email/get", Args: map[string]any{}, ClientID: "c2"},
	)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}

	if err := results[0].Err(); err != nil {
		t.Errorf("first result unexpectedly errored: %v", err)
	}
	err = results[1].Err()
	if err == nil {
		t.Fatal("expected per-call error")
	}
	if !strings.Contains(err.Error(), "serverFail") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error text = %q", err)
	}
}

func TestKeywordMapping(t *testing.T) {
	w := &wireEmail{
		ID:       "m1",
		Keywords: map[string]bool{KeywordSeen: true, KeywordDraft: true},
		From:     []emailAddress{{Name: "Alice", Email: "alice@example.com"}},
	}
	h := w.header()

	if !h.IsRead || !h.IsDraft || h.IsFlagged || h.IsAnswered {
		t.Errorf("flag slots = %+v", h)
	}
	if h.From != "Alice <alice@example.com>" {
		t.Errorf("From = %q", h.From)
	}
}

func TestSelectIdentity(t *testing.T) {
	ids := []Identity{
		{ID: "i1", Email: "other@example.com"},
		{ID: "i2", Email: "me@example.com"},
	}

	got, err := selectIdentity(ids, "me@example.com")
	if err != nil || got != "i2" {
		t.Errorf("selectIdentity = %q, %v", got, err)
	}

	got, err = selectIdentity(ids, "unknown@example.com")
	if err != nil || got != "i1" {
		t.Errorf("selectIdentity fallback = %q, %v", got, err)
	}

	if _, err := selectIdentity(nil, "x"); err == nil {
		t.Error("expected error for empty identity list")
	}
}
