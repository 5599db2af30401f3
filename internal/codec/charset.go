package codec

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zitrone/mailengine/internal/logging"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeCharset converts content from the declared charset to UTF-8.
// It handles mislabeled encodings by validating UTF-8 and auto-detecting
// when the declared label does not hold up.
func DecodeCharset(content []byte, declaredCharset string) string {
	log := logging.WithComponent("charset")

	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) {
			str := string(content)
			if !looksLikeGibberish(str) {
				return str
			}
			log.Warn().Str("declaredCharset", declaredCharset).Msg("Valid UTF-8 but looks misencoded, auto-detecting")
		}

		enc, name, _ := charset.DetermineEncoding(content, "text/html")
		decoded, err := enc.NewDecoder().Bytes(content)
		if err == nil && !looksLikeGibberish(string(decoded)) {
			log.Debug().Str("detectedEncoding", name).Msg("Decoded using auto-detected encoding")
			return string(decoded)
		}

		// Auto-detection failed or produced gibberish, try common CJK encodings
		for _, encName := range []string{"gb18030", "gbk", "gb2312", "big5"} {
			e, err := htmlindex.Get(encName)
			if err != nil {
				continue
			}
			decoded, err := e.NewDecoder().Bytes(content)
			if err == nil && utf8.Valid(decoded) && !looksLikeGibberish(string(decoded)) {
				return string(decoded)
			}
		}

		log.Warn().Msg("All charset detection attempts failed, returning as-is")
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		aliases := map[string]string{
			"gb2312": "gbk", // GB2312 labels are usually actually GBK
			"x-gbk":  "gbk",
			"x-big5": "big5",
		}
		if alias, ok := aliases[strings.ToLower(declaredCharset)]; ok {
			enc, err = htmlindex.Get(alias)
		}
		if err != nil {
			log.Warn().Err(err).Str("declaredCharset", declaredCharset).Msg("Unknown charset, returning as-is")
			return string(content)
		}
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		log.Warn().Err(err).Str("declaredCharset", declaredCharset).Msg("Charset decoding failed, returning as-is")
		return string(content)
	}
	return string(decoded)
}

// looksLikeGibberish checks for telltale signs of misencoded text:
// a high concentration of replacement characters or CJK Extension B
// characters, both of which are rare in real content.
func looksLikeGibberish(s string) bool {
	if len(s) == 0 {
		return false
	}

	var replacementCount, cjkExtBCount, total int
	for _, r := range s {
		total++
		if r == '�' {
			replacementCount++
		}
		if r >= 0x20000 && r <= 0x2A6DF {
			cjkExtBCount++
		}
	}

	if total > 10 && float64(replacementCount)/float64(total) > 0.1 {
		return true
	}
	if total > 20 && float64(cjkExtBCount)/float64(total) > 0.05 {
		return true
	}
	return false
}

var (
	metaCharsetRe   = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'\s>]+)`)
	metaHTTPEquivRe = regexp.MustCompile(`(?i)<meta[^>]+content=["'][^"']*charset=([^"'\s;]+)`)
)

// extractCharsetFromHTML extracts a charset from HTML meta tags, used
// as a fallback when the Content-Type header does not carry one. Only
// the first 1024 bytes are searched; meta tags sit near the top.
func extractCharsetFromHTML(html []byte) string {
	search := html
	if len(search) > 1024 {
		search = search[:1024]
	}

	if m := metaCharsetRe.FindSubmatch(search); len(m) > 1 {
		return string(m[1])
	}
	if m := metaHTTPEquivRe.FindSubmatch(search); len(m) > 1 {
		return string(m[1])
	}
	return ""
}
