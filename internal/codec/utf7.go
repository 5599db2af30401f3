package codec

import (
	"encoding/base64"
	"strings"
	"unicode/utf16"
)

// modifiedBase64 is RFC 3501 base64: "/" replaced by ",", no padding.
var modifiedBase64 = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,",
).WithPadding(base64.NoPadding)

// EncodeUTF7 encodes a mailbox name into IMAP Modified UTF-7 (RFC 3501).
// Printable ASCII in [0x20, 0x7e] passes through unchanged, "&" becomes
// "&-", and runs of anything else are collected into a single
// "&<modified-base64>-" escape of their UTF-16BE form.
func EncodeUTF7(s string) string {
	var out strings.Builder
	var run []rune

	flush := func() {
		if len(run) == 0 {
			return
		}
		units := utf16.Encode(run)
		buf := make([]byte, 0, len(units)*2)
		for _, u := range units {
			buf = append(buf, byte(u>>8), byte(u))
		}
		out.WriteByte('&')
		out.WriteString(modifiedBase64.EncodeToString(buf))
		out.WriteByte('-')
		run = run[:0]
	}

	for _, r := range s {
		switch {
		case r == '&':
			flush()
			out.WriteString("&-")
		case r >= 0x20 && r <= 0x7e:
			flush()
			out.WriteRune(r)
		default:
			run = append(run, r)
		}
	}
	flush()

	return out.String()
}

// DecodeUTF7 decodes an IMAP Modified UTF-7 mailbox name. "&-" decodes
// to a literal "&". The decoder is permissive: a malformed escape is
// passed through unchanged, wrapped in "&...-".
func DecodeUTF7(s string) string {
	var out strings.Builder

	for i := 0; i < len(s); {
		c := s[i]
		if c != '&' {
			out.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(s[i+1:], '-')
		if end < 0 {
			// Unterminated escape, pass through
			out.WriteString(s[i:])
			break
		}
		encoded := s[i+1 : i+1+end]
		i += end + 2

		if encoded == "" {
			out.WriteByte('&')
			continue
		}

		decoded, ok := decodeModifiedBase64(encoded)
		if !ok {
			out.WriteByte('&')
			out.WriteString(encoded)
			out.WriteByte('-')
			continue
		}
		out.WriteString(decoded)
	}

	return out.String()
}

func decodeModifiedBase64(encoded string) (string, bool) {
	raw, err := modifiedBase64.DecodeString(encoded)
	if err != nil || len(raw)%2 != 0 {
		return "", false
	}

	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}

	runes := utf16.Decode(units)
	for _, r := range runes {
		if r == 0xfffd {
			return "", false
		}
	}
	return string(runes), true
}
