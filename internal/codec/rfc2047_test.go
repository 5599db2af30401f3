package codec

import "testing"

func TestDecodeWordBase64(t *testing.T) {
	got := DecodeWord("=?UTF-8?B?RW50d8O8cmZl?= test")
	if got != "Entwürfe test" {
		t.Errorf("DecodeWord = %q, want %q", got, "Entwürfe test")
	}
}

func TestDecodeWordQEncoding(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"=?UTF-8?Q?hello_world?=", "hello world"},
		{"=?UTF-8?Q?caf=C3=A9?=", "café"},
		{"=?ISO-8859-1?Q?caf=E9?=", "café"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := DecodeWord(tt.in); got != tt.want {
			t.Errorf("DecodeWord(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeWordElidesWhitespaceBetweenWords(t *testing.T) {
	got := DecodeWord("=?UTF-8?Q?foo?= =?UTF-8?Q?bar?=")
	if got != "foobar" {
		t.Errorf("DecodeWord = %q, want %q", got, "foobar")
	}

	// Whitespace before ordinary text is preserved
	got = DecodeWord("=?UTF-8?Q?foo?= bar")
	if got != "foo bar" {
		t.Errorf("DecodeWord = %q, want %q", got, "foo bar")
	}
}

func TestDecodeWordMalformedPassesThrough(t *testing.T) {
	tests := []string{
		"=?UTF-8?X?unknown?=",
		"=?UTF-8?B?not!base64?=",
		"=?UTF-8?Q?unterminated",
		"=?",
	}
	for _, in := range tests {
		got := DecodeWord(in)
		if got != in {
			t.Errorf("DecodeWord(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestEncodeDecodeWordRoundTrip(t *testing.T) {
	inputs := []string{
		"Entwürfe",
		"日本語のテキスト",
		"mixed ascii und Umlaute äöü",
		"façade — dash",
	}
	for _, in := range inputs {
		for _, enc := range []byte{'B', 'Q'} {
			encoded := EncodeWord(in, enc)
			if got := DecodeWord(encoded); got != in {
				t.Errorf("round trip (%c) of %q = %q via %q", enc, in, got, encoded)
			}
		}
	}
}

func TestEncodeWordASCIIUnchanged(t *testing.T) {
	if got := EncodeWord("plain subject", 'B'); got != "plain subject" {
		t.Errorf("EncodeWord = %q, want unchanged", got)
	}
}
