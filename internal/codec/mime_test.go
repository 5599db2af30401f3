package codec

import (
	"strings"
	"testing"
)

const multipartFixture = "Mime-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hello plain\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Hello <script>evil()</script>html</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestExtractBodyMultipart(t *testing.T) {
	body := ExtractBody([]byte(multipartFixture))

	if !strings.Contains(body.Text, "Hello plain") {
		t.Errorf("Text = %q", body.Text)
	}
	if !strings.Contains(body.HTML, "html") {
		t.Errorf("HTML = %q", body.HTML)
	}
	if strings.Contains(body.HTML, "script") {
		t.Errorf("HTML not sanitized: %q", body.HTML)
	}

	if !body.HasAttachments || len(body.Attachments) != 1 {
		t.Fatalf("Attachments = %+v", body.Attachments)
	}
	att := body.Attachments[0]
	if att.Filename != "report.pdf" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if att.MIMEType != "application/pdf" {
		t.Errorf("MIMEType = %q", att.MIMEType)
	}
	if att.PartID != "2" {
		t.Errorf("PartID = %q, want 2", att.PartID)
	}
}

func TestExtractBodySinglePart(t *testing.T) {
	raw := "Content-Type: text/plain; charset=utf-8\r\n\r\njust text\r\n"
	body := ExtractBody([]byte(raw))
	if !strings.Contains(body.Text, "just text") {
		t.Errorf("Text = %q", body.Text)
	}
	if body.HasAttachments {
		t.Error("unexpected attachments")
	}
}

func TestExtractBodyUnparseable(t *testing.T) {
	raw := "no headers here at all"
	body := ExtractBody([]byte(raw))
	if body.Text == "" {
		t.Error("expected fallback plain-text body")
	}
}

func TestExtractBodyFirstLeafWins(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=\"b\"\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"first\r\n" +
		"--b\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"second\r\n" +
		"--b--\r\n"

	body := ExtractBody([]byte(raw))
	if !strings.Contains(body.Text, "first") || strings.Contains(body.Text, "second") {
		t.Errorf("Text = %q, want first leaf only", body.Text)
	}
}
