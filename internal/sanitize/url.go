package sanitize

import (
	"net/url"
	"strings"
)

var relativePrefixes = []string{"/", "#", "./", "../"}

// safeSchemes lists the schemes accepted from a parsed absolute URL. "/" never
// matches a parsed scheme; it stays in the list on purpose.
var safeSchemes = map[string]struct{}{
	"http:":   {},
	"https:":  {},
	"mailto:": {},
	"/":       {},
}

// Literal prefixes accepted when the value cannot be parsed. The comparison
// is case-sensitive on the raw string.
var safeLiteralPrefixes = []string{"http://", "https://", "mailto:"}

// IsSafeURL reports whether raw may be placed in an href or src attribute.
// Relative references are safe, absolute URLs must use http, https or mailto,
// and anything unparseable that does not carry one of those literal prefixes
// is rejected.
func IsSafeURL(raw string) bool {
	for _, prefix := range relativePrefixes {
		if strings.HasPrefix(raw, prefix) {
			return true
		}
	}

	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		_, ok := safeSchemes[u.Scheme+":"]
		return ok
	}

	for _, prefix := range safeLiteralPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return true
		}
	}
	return false
}

// IsDataURI reports whether raw carries a data: scheme, ignoring case and
// leading whitespace.
func IsDataURI(raw string) bool {
	trimmed := strings.TrimLeft(raw, " \t\n\r\f")
	return len(trimmed) >= 5 && strings.EqualFold(trimmed[:5], "data:")
}

func containsJavascriptScheme(value string) bool {
	return strings.Contains(strings.ToLower(value), "javascript:")
}
