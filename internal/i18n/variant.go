// Package i18n selects localized message variants for client-facing
// responses. The site serves an international clientele, so user-visible
// strings (booking confirmations, error pages) carry variants in the
// supported languages and the best one is picked per request.
package i18n

import (
	"golang.org/x/text/language"
)

// DefaultLang is the fallback language code when nothing matches.
const DefaultLang = "en"

var supported = []language.Tag{
	language.English, // first entry is the matcher fallback
	language.Russian,
	language.Ukrainian,
	language.German,
}

var matcher = language.NewMatcher(supported)

// codes mirrors supported, indexed the way the matcher reports.
var codes = []string{"en", "ru", "uk", "de"}

// MatchLang resolves an Accept-Language header value to one of the supported
// language codes. Unparseable or empty input resolves to DefaultLang.
func MatchLang(acceptLanguage string) string {
	if acceptLanguage == "" {
		return DefaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, _ := matcher.Match(tags...)
	if idx < 0 || idx >= len(codes) {
		return DefaultLang
	}
	return codes[idx]
}

// SelectVariant picks the variant matching the Accept-Language header from a
// map keyed by language code. It is a pure function: same inputs, same
// output, no hidden state. Missing variants fall back to DefaultLang, then to
// any deterministically chosen entry (lowest code), then to "".
func SelectVariant(acceptLanguage string, variants map[string]string) string {
	if len(variants) == 0 {
		return ""
	}
	if v, ok := variants[MatchLang(acceptLanguage)]; ok {
		return v
	}
	if v, ok := variants[DefaultLang]; ok {
		return v
	}
	best := ""
	for code := range variants {
		if best == "" || code < best {
			best = code
		}
	}
	return variants[best]
}
