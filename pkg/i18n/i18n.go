// Package i18n selects translated strings and interface languages for a
// client's language preferences.
package i18n

import (
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/language"

	"github.com/NERVsystems/osmosemcp/pkg/languages"
)

const (
	// AutoKey is the key of a negotiated single-entry result.
	AutoKey = "auto"

	// DefaultLanguage is used when nothing else matches.
	DefaultLanguage = "en"

	defaultHeaderCacheSize = 512
)

// Translations maps a language code to the text of one message.
type Translations map[string]string

// Negotiator picks translations using a language registry.
// It is safe for concurrent use.
type Negotiator struct {
	registry *languages.Registry
	headers  *lru.Cache[string, string]
	logger   *slog.Logger
}

// NewNegotiator creates a negotiator bound to registry.
func NewNegotiator(registry *languages.Registry) *Negotiator {
	headers, err := lru.New[string, string](defaultHeaderCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Negotiator{
		registry: registry,
		headers:  headers,
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger for the negotiator
func (n *Negotiator) SetLogger(logger *slog.Logger) {
	n.logger = logger
}

// Registry returns the registry the negotiator was built with.
func (n *Negotiator) Registry() *languages.Registry {
	return n.registry
}

// Select negotiates a translation.
//
// A nil or empty map yields nil. A nil langs slice means no negotiation and
// returns translations unchanged. Otherwise the result holds a single AutoKey
// entry: the first preferred registry language present, then English, then the
// first available translation in registry order (lexicographic order for codes
// outside the registry).
func (n *Negotiator) Select(translations Translations, langs []string) Translations {
	if len(translations) == 0 {
		return nil
	}
	if langs == nil {
		return translations
	}

	for _, lang := range langs {
		if !n.registry.Has(lang) {
			continue
		}
		if text, ok := translations[lang]; ok {
			return Translations{AutoKey: text}
		}
	}

	if text, ok := translations[DefaultLanguage]; ok {
		return Translations{AutoKey: text}
	}

	return Translations{AutoKey: translations[n.fallbackKey(translations)]}
}

// SelectText is Select unwrapped to the chosen string.
// With nil langs the map is returned whole by Select, so there is no single
// text and the result is false unless an AutoKey entry already exists.
func (n *Negotiator) SelectText(translations Translations, langs []string) (string, bool) {
	trans := n.Select(translations, langs)
	if trans == nil {
		return "", false
	}
	text, ok := trans[AutoKey]
	return text, ok
}

func (n *Negotiator) fallbackKey(translations Translations) string {
	best, bestPos := "", -1
	for key := range translations {
		if pos, ok := n.registry.Position(key); ok && (bestPos < 0 || pos < bestPos) {
			best, bestPos = key, pos
		}
	}
	if bestPos >= 0 {
		return best
	}

	keys := make([]string, 0, len(translations))
	for key := range translations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys[0]
}

// BestUILanguage picks the registry language that best serves langs.
// Exact matches win over primary subtag matches ("pt-PT" serves "pt"),
// and DefaultLanguage is returned when nothing matches.
func (n *Negotiator) BestUILanguage(langs []string) string {
	for _, lang := range langs {
		if code, ok := n.exactCode(lang); ok {
			return code
		}
	}
	for _, lang := range langs {
		if base := primarySubtag(lang); n.registry.Has(base) {
			return base
		}
	}
	return DefaultLanguage
}

func (n *Negotiator) exactCode(lang string) (string, bool) {
	if n.registry.Has(lang) {
		return lang, true
	}

	tag, err := language.Parse(lang)
	if err != nil {
		code := strings.ReplaceAll(lang, "-", "_")
		return code, n.registry.Has(code)
	}

	base, _ := tag.Base()
	code := base.String()
	if region, conf := tag.Region(); conf == language.Exact {
		code += "_" + region.String()
	}
	return code, n.registry.Has(code)
}

func primarySubtag(lang string) string {
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		return base.String()
	}
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

// ParseAcceptLanguage returns the languages of an Accept-Language header in
// preference order. Wildcards and q=0 entries are dropped.
func ParseAcceptLanguage(header string) []string {
	tags, weights, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}

	langs := make([]string, 0, len(tags))
	for i, tag := range tags {
		// "*" parses as the "mul" tag
		if tag == language.Und || tag.String() == "mul" || weights[i] <= 0 {
			continue
		}
		langs = append(langs, tag.String())
	}
	return langs
}

// UILanguageForHeader resolves an Accept-Language header to a registry
// language. Results are memoised per header value.
func (n *Negotiator) UILanguageForHeader(header string) string {
	if code, ok := n.headers.Get(header); ok {
		return code
	}

	code := n.BestUILanguage(ParseAcceptLanguage(header))
	n.headers.Add(header, code)

	n.logger.Debug("resolved interface language",
		"accept_language", header,
		"language", code)

	return code
}
