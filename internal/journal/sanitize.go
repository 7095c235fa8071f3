package journal

import "strings"

var angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// sanitizeDescription escapes angle brackets so stored text never forms a tag.
// It is not an HTML sanitizer: quotes and ampersands pass through unchanged.
func sanitizeDescription(s string) string {
	return angleEscaper.Replace(s)
}
