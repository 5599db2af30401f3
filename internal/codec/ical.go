package codec

import (
	"strings"
	"time"
)

// ContentLine is a parsed iCalendar/vCard content line:
// PROPERTY[;PARAM=VALUE]*:VALUE with the value escape-decoded.
type ContentLine struct {
	Name   string
	Params map[string]string
	Value  string
}

// Unfold removes iCalendar line folding: a CRLF (or bare LF) followed
// by a space or tab continues the previous line.
func Unfold(s string) string {
	s = strings.ReplaceAll(s, "\r\n ", "")
	s = strings.ReplaceAll(s, "\r\n\t", "")
	s = strings.ReplaceAll(s, "\n ", "")
	s = strings.ReplaceAll(s, "\n\t", "")
	return s
}

// Fold folds a content line at 75 octets, continuing with CRLF+space.
func Fold(line string) string {
	const limit = 75
	if len(line) <= limit {
		return line
	}

	var b strings.Builder
	for len(line) > limit {
		cut := limit
		// Do not split a UTF-8 sequence
		for cut > 1 && line[cut]&0xc0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
	}
	b.WriteString(line)
	return b.String()
}

// ParseContentLine splits an unfolded content line into name,
// parameters, and escape-decoded value. Returns false when the line has
// no colon separator.
func ParseContentLine(line string) (ContentLine, bool) {
	cl := ContentLine{Params: map[string]string{}}

	// The colon separating name+params from the value must be found
	// outside of double-quoted parameter values.
	sep := -1
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ':':
			if !inQuotes {
				sep = i
			}
		}
		if sep >= 0 {
			break
		}
	}
	if sep < 0 {
		return cl, false
	}

	nameAndParams := line[:sep]
	cl.Value = UnescapeText(line[sep+1:])

	parts := strings.Split(nameAndParams, ";")
	cl.Name = strings.ToUpper(parts[0])
	for _, p := range parts[1:] {
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			cl.Params[strings.ToUpper(p[:eq])] = strings.Trim(p[eq+1:], `"`)
		}
	}

	return cl, true
}

// FormatContentLine emits a folded content line with CRLF terminator.
func FormatContentLine(name string, params map[string]string, value string) string {
	var b strings.Builder
	b.WriteString(name)
	for k, v := range params {
		b.WriteByte(';')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	b.WriteByte(':')
	b.WriteString(EscapeText(value))
	return Fold(b.String()) + "\r\n"
}

// EscapeText escapes backslash, comma, semicolon, and newline for use
// in an iCalendar/vCard property value.
func EscapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		",", `\,`,
		";", `\;`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

// UnescapeText reverses EscapeText.
func UnescapeText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case '\\', ',', ';':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ParseDate parses an iCalendar date or date-time value. YYYYMMDD is
// date-only; YYYYMMDDTHHMMSS[Z] is a date-time, the Z suffix denoting
// UTC. Returns the parsed time and whether the value was date-only.
func ParseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 8:
		t, err := time.ParseInLocation("20060102", s, time.Local)
		return t, true, err
	case strings.HasSuffix(s, "Z"):
		t, err := time.Parse("20060102T150405Z", s)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", s, time.Local)
		return t, false, err
	}
}

// FormatDate emits the iCalendar form of t: date-only YYYYMMDD or a
// UTC date-time with Z suffix.
func FormatDate(t time.Time, dateOnly bool) string {
	if dateOnly {
		return t.Format("20060102")
	}
	return t.UTC().Format("20060102T150405Z")
}

