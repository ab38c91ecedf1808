package engine

import (
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/text/language"
)

// UserAgentChrome is the desktop Chrome UA the headless browser presents.
const UserAgentChrome = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Safe for UTF-8 titles and descriptions.
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}

// languageNames covers the names the search form offers; anything else is
// parsed as a BCP 47 tag.
var languageNames = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"chinese":    "zh",
	"korean":     "ko",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"turkish":    "tr",
	"greek":      "el",
	"thai":       "th",
	"vietnamese": "vi",
	"indonesian": "id",
	"polish":     "pl",
	"swedish":    "sv",
}

// RelevanceLanguage maps a language name or tag to the two-letter hint the
// YouTube Data API expects: "English" → "en", "pt-BR" → "pt", "" → "en".
// Unknown names fall back to their first two letters.
func RelevanceLanguage(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := languageNames[name]; ok {
		return code
	}
	if len(name) < 2 {
		return "en"
	}
	if tag, err := language.Parse(name); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	return name[:2]
}
