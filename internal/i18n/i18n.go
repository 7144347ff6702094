package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var jsonUnmarshal = json.Unmarshal

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

// Catalog holds every feedback message in all embedded languages.
type Catalog struct {
	bundle      *i18n.Bundle
	defaultLang string
}

// New loads the translation bundle with lang as the default language.
func New(lang string) (*Catalog, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", jsonUnmarshal)

	// Load all locale files from embedded FS.
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	return &Catalog{bundle: bundle, defaultLang: tag.String()}, nil
}

// MustNew is New for tests and static setup.
func MustNew(lang string) *Catalog {
	c, err := New(lang)
	if err != nil {
		panic(err)
	}
	return c
}

// Languages lists the languages with an embedded locale file.
func (c *Catalog) Languages() []string {
	var out []string
	for _, t := range c.bundle.LanguageTags() {
		out = append(out, t.String())
	}
	return out
}

// Localizer returns a localizer preferring langs in order. Each entry may be a
// plain tag or a raw Accept-Language header value.
func (c *Catalog) Localizer(langs ...string) *Localizer {
	langs = append(langs, c.defaultLang)
	return &Localizer{loc: i18n.NewLocalizer(c.bundle, langs...)}
}

// Default returns the localizer for the catalog's default language.
func (c *Catalog) Default() *Localizer {
	return c.Localizer()
}

// FromContext returns the request localizer, or the default one when none is set.
func (c *Catalog) FromContext(ctx context.Context) *Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*Localizer); ok {
		return loc
	}
	return c.Default()
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// Localizer translates message IDs for one language preference list.
type Localizer struct {
	loc *i18n.Localizer
}

// T translates a message by ID.
func (l *Localizer) T(msgID string) string {
	s, err := l.loc.Localize(&i18n.LocalizeConfig{MessageID: msgID})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Td translates a message by ID with template data.
func (l *Localizer) Td(msgID string, data map[string]any) string {
	s, err := l.loc.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}
