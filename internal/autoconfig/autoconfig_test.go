package autoconfig

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleXML = `<?xml version="1.0"?>
<clientConfig version="1.1">
  <emailProvider id="example.com">
    <displayName>Example Mail</displayName>
    <incomingServer type="imap">
      <hostname>imap.%EMAILDOMAIN%</hostname>
      <port>993</port>
      <socketType>SSL</socketType>
      <username>%EMAILADDRESS%</username>
    </incomingServer>
    <incomingServer type="pop3">
      <hostname>pop.example.com</hostname>
      <port>995</port>
      <socketType>SSL</socketType>
    </incomingServer>
    <outgoingServer type="smtp">
      <hostname>smtp.%EMAILDOMAIN%</hostname>
      <port>587</port>
      <socketType>STARTTLS</socketType>
    </outgoingServer>
  </emailProvider>
</clientConfig>`

func TestParseAutoconfigXML(t *testing.T) {
	result := parseAutoconfigXML([]byte(sampleXML), "user@example.com", "example.com", "user")
	if result == nil {
		t.Fatal("parse failed")
	}

	if result.IMAPHost != "imap.example.com" || result.IMAPPort != 993 || result.IMAPSocketType != "SSL" {
		t.Errorf("imap = %+v", result)
	}
	if result.SMTPHost != "smtp.example.com" || result.SMTPPort != 587 || result.SMTPSocketType != "STARTTLS" {
		t.Errorf("smtp = %+v", result)
	}
	if result.DisplayName != "Example Mail" {
		t.Errorf("displayName = %q", result.DisplayName)
	}
}

func TestParseAutoconfigXMLPlaceholders(t *testing.T) {
	xml := strings.ReplaceAll(sampleXML, "imap.%EMAILDOMAIN%", "%EMAILLOCALPART%.mail.example.com")
	result := parseAutoconfigXML([]byte(xml), "user@example.com", "example.com", "user")
	if result == nil || result.IMAPHost != "user.mail.example.com" {
		t.Errorf("result = %+v", result)
	}
}

func TestParseAutoconfigXMLMalformed(t *testing.T) {
	if r := parseAutoconfigXML([]byte("<not-xml"), "u@d.c", "d.c", "u"); r != nil {
		t.Errorf("expected nil for malformed XML, got %+v", r)
	}
	if r := parseAutoconfigXML([]byte("<clientConfig></clientConfig>"), "u@d.c", "d.c", "u"); r != nil {
		t.Errorf("expected nil for empty config, got %+v", r)
	}
}

func TestLookupGuessFallback(t *testing.T) {
	r := NewResolver()
	// A reserved TLD guarantees every probe fails fast enough
	result, err := r.Lookup("user@nonexistent.invalid")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !result.Guessed {
		t.Error("expected guessed result")
	}
	if result.IMAPHost != "imap.nonexistent.invalid" || result.IMAPPort != 993 {
		t.Errorf("imap guess = %+v", result)
	}
	if result.SMTPHost != "smtp.nonexistent.invalid" || result.SMTPPort != 587 || result.SMTPSocketType != "STARTTLS" {
		t.Errorf("smtp guess = %+v", result)
	}
}

func TestLookupInvalidEmail(t *testing.T) {
	r := NewResolver()
	for _, email := range []string{"nodomain", "@x.com", "user@"} {
		if _, err := r.Lookup(email); err == nil {
			t.Errorf("Lookup(%q) expected error", email)
		}
	}
}

func TestFetchReturnsJMAPSessionBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"capabilities": {}, "apiUrl": "/jmap"}`)
	}))
	defer srv.Close()

	r := NewResolver()
	body, err := r.fetch(srv.URL + "/.well-known/jmap")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(string(body), "capabilities") {
		t.Errorf("body = %s", body)
	}
}

func TestSplitEmail(t *testing.T) {
	local, domain, err := splitEmail("alice@mail.example.com")
	if err != nil || local != "alice" || domain != "mail.example.com" {
		t.Errorf("splitEmail = %q, %q, %v", local, domain, err)
	}
}
