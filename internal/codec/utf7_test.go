package codec

import "testing"

func TestEncodeUTF7(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INBOX", "INBOX"},
		{"Entwürfe", "Entw&APw-rfe"},
		{"Sent Items", "Sent Items"},
		{"A&B", "A&-B"},
		{"日本語", "&ZeVnLIqe-"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EncodeUTF7(tt.in); got != tt.want {
			t.Errorf("EncodeUTF7(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeUTF7(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INBOX", "INBOX"},
		{"Entw&APw-rfe", "Entwürfe"},
		{"&-", "&"},
		{"A&-B", "A&B"},
		{"&ZeVnLIqe-", "日本語"},
	}
	for _, tt := range tests {
		if got := DecodeUTF7(tt.in); got != tt.want {
			t.Errorf("DecodeUTF7(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeUTF7MalformedPassesThrough(t *testing.T) {
	tests := []string{
		"&!!!-folder", // invalid modified base64
		"&AP-x",       // odd byte count after decode
	}
	for _, in := range tests {
		got := DecodeUTF7(in)
		if got != in {
			t.Errorf("DecodeUTF7(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestUTF7RoundTrip(t *testing.T) {
	inputs := []string{
		"INBOX",
		"Entwürfe",
		"Gesendete Objekte",
		"folder&name",
		"混合 mixed 📁 names",
		"tab\tand ctrl\x01 chars",
	}
	for _, in := range inputs {
		wire := EncodeUTF7(in)
		if got := DecodeUTF7(wire); got != in {
			t.Errorf("round trip of %q = %q via wire %q", in, got, wire)
		}
	}
}
