package imap

import (
	"reflect"
	"sort"
	"testing"
)

func TestFormatUIDSequence(t *testing.T) {
	tests := []struct {
		in   []uint32
		want string
	}{
		{nil, ""},
		{[]uint32{7}, "7"},
		{[]uint32{1, 2, 3}, "1:3"},
		{[]uint32{1, 2, 3, 5, 6, 7, 10}, "1:3,5:7,10"},
		{[]uint32{10, 5, 6, 1, 2, 3, 7}, "1:3,5:7,10"},
		{[]uint32{4, 4, 5}, "4:5"},
	}
	for _, tt := range tests {
		if got := FormatUIDSequence(tt.in); got != tt.want {
			t.Errorf("FormatUIDSequence(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUIDSequenceRoundTrip(t *testing.T) {
	sets := [][]uint32{
		{1},
		{1, 2, 3, 4, 5},
		{100, 1, 50, 51, 52, 2},
		{9, 11, 13},
	}
	for _, uids := range sets {
		parsed, err := ParseUIDSequence(FormatUIDSequence(uids))
		if err != nil {
			t.Fatalf("ParseUIDSequence: %v", err)
		}

		want := make([]uint32, len(uids))
		copy(want, uids)
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		sort.Slice(parsed, func(i, j int) bool { return parsed[i] < parsed[j] })

		if !reflect.DeepEqual(parsed, want) {
			t.Errorf("round trip of %v = %v", uids, parsed)
		}
	}
}

func TestParseUIDSequenceMalformed(t *testing.T) {
	for _, in := range []string{"a", "1:x", "1,,2", "1:2:3"} {
		if _, err := ParseUIDSequence(in); err == nil {
			t.Errorf("ParseUIDSequence(%q) expected error", in)
		}
	}
}

func TestPageRange(t *testing.T) {
	tests := []struct {
		total, start, count uint32
		begin, end          uint32
		ok                  bool
	}{
		{237, 0, 50, 188, 237, true},
		{237, 230, 50, 1, 7, true},
		{237, 237, 50, 0, 0, false},
		{10, 0, 50, 1, 10, true},
		{0, 0, 50, 0, 0, false},
		{5, 2, 2, 2, 3, true},
	}
	for _, tt := range tests {
		begin, end, ok := pageRange(tt.total, tt.start, tt.count)
		if begin != tt.begin || end != tt.end || ok != tt.ok {
			t.Errorf("pageRange(%d,%d,%d) = (%d,%d,%v), want (%d,%d,%v)",
				tt.total, tt.start, tt.count, begin, end, ok, tt.begin, tt.end, tt.ok)
		}
	}
}

func TestDetermineFolderType(t *testing.T) {
	tests := []struct {
		name string
		want FolderType
	}{
		{"INBOX", FolderTypeInbox},
		{"Sent Messages", FolderTypeSent},
		{"Gesendet", FolderTypeSent},
		{"Entwürfe", FolderTypeDrafts},
		{"Deleted Items", FolderTypeTrash},
		{"Junk", FolderTypeSpam},
		{"Projects", FolderTypeFolder},
	}
	for _, tt := range tests {
		if got := determineFolderType(tt.name, nil); got != tt.want {
			t.Errorf("determineFolderType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMaybeDecodeBase64(t *testing.T) {
	// Base64-shaped payload is decoded
	got := maybeDecodeBase64([]byte("aGVsbG8=\r\n"))
	if string(got) != "hello" {
		t.Errorf("decoded = %q, want hello", got)
	}

	// Binary data passes through unchanged
	raw := []byte{0x00, 0x01, 0xff, 'a'}
	if got := maybeDecodeBase64(raw); !reflect.DeepEqual(got, raw) {
		t.Errorf("binary data changed: %v", got)
	}

	// ASCII that is not a multiple of 4 passes through
	text := []byte("hello")
	if got := maybeDecodeBase64(text); !reflect.DeepEqual(got, text) {
		t.Errorf("short text changed: %q", got)
	}
}
