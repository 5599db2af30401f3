package codec

import (
	"strings"
	"testing"
	"time"
)

func TestUnfold(t *testing.T) {
	in := "DESCRIPTION:This is a lo\r\n ng description\r\n\tthat was folded"
	want := "DESCRIPTION:This is a long descriptionthat was folded"
	if got := Unfold(in); got != want {
		t.Errorf("Unfold = %q, want %q", got, want)
	}
}

func TestFoldLongLine(t *testing.T) {
	line := "SUMMARY:" + strings.Repeat("x", 200)
	folded := Fold(line)

	for _, part := range strings.Split(folded, "\r\n") {
		if len(part) > 76 { // 75 + leading continuation space
			t.Errorf("folded segment too long: %d bytes", len(part))
		}
	}
	if Unfold(folded) != line {
		t.Error("Unfold(Fold(line)) != line")
	}
}

func TestFoldDoesNotSplitUTF8(t *testing.T) {
	line := "SUMMARY:" + strings.Repeat("ü", 100)
	folded := Fold(line)
	if Unfold(folded) != line {
		t.Error("folding split a multi-byte sequence")
	}
}

func TestParseContentLine(t *testing.T) {
	cl, ok := ParseContentLine(`DTSTART;TZID=Europe/Berlin;VALUE=DATE-TIME:20240315T093000`)
	if !ok {
		t.Fatal("ParseContentLine failed")
	}
	if cl.Name != "DTSTART" {
		t.Errorf("Name = %q", cl.Name)
	}
	if cl.Params["TZID"] != "Europe/Berlin" || cl.Params["VALUE"] != "DATE-TIME" {
		t.Errorf("Params = %v", cl.Params)
	}
	if cl.Value != "20240315T093000" {
		t.Errorf("Value = %q", cl.Value)
	}
}

func TestParseContentLineEscapes(t *testing.T) {
	cl, ok := ParseContentLine(`SUMMARY:Lunch\, then meeting\; bring\\ \nnotes`)
	if !ok {
		t.Fatal("ParseContentLine failed")
	}
	want := "Lunch, then meeting; bring\\ \nnotes"
	if cl.Value != want {
		t.Errorf("Value = %q, want %q", cl.Value, want)
	}
}

func TestParseContentLineNoColon(t *testing.T) {
	if _, ok := ParseContentLine("BEGIN"); ok {
		t.Error("expected failure on line without colon")
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		"a,b;c\\d",
		"line one\nline two",
		`already \escaped? no: \\`,
	}
	for _, in := range inputs {
		if got := UnescapeText(EscapeText(in)); got != in {
			t.Errorf("escape round trip of %q = %q", in, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, dateOnly, err := ParseDate("20240315")
	if err != nil || !dateOnly {
		t.Fatalf("ParseDate date-only: %v dateOnly=%v", err, dateOnly)
	}
	if d.Year() != 2024 || d.Month() != time.March || d.Day() != 15 {
		t.Errorf("ParseDate = %v", d)
	}

	dt, dateOnly, err := ParseDate("20240315T093000Z")
	if err != nil || dateOnly {
		t.Fatalf("ParseDate date-time: %v dateOnly=%v", err, dateOnly)
	}
	if dt.Hour() != 9 || dt.Location() != time.UTC {
		t.Errorf("ParseDate = %v", dt)
	}

	if _, _, err := ParseDate("not-a-date"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	if got := FormatDate(ts, true); got != "20240315" {
		t.Errorf("FormatDate date-only = %q", got)
	}
	if got := FormatDate(ts, false); got != "20240315T093000Z" {
		t.Errorf("FormatDate date-time = %q", got)
	}
}

func TestFormatContentLine(t *testing.T) {
	line := FormatContentLine("SUMMARY", nil, "a,b;c")
	if line != `SUMMARY:a\,b\;c`+"\r\n" {
		t.Errorf("FormatContentLine = %q", line)
	}
}
