package codec

import "github.com/microcosm-cc/bluemonday"

var htmlPolicy = bluemonday.UGCPolicy()

// SanitizeHTML strips scripts, event handlers, and other active content
// from an HTML body before it is exposed to callers.
func SanitizeHTML(html string) string {
	if html == "" {
		return ""
	}
	return htmlPolicy.Sanitize(html)
}
