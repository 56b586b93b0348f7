// Package i18n renders the user-facing alarm labels in the configured language.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/tartampluch/go-wakeup/internal/config"
)

//go:embed locales/*.json
var localeFS embed.FS

var (
	loadOnce  sync.Once
	bundle    *i18n.Bundle
	languages []string
)

// load builds the shared bundle from the embedded locale files.
func load() {
	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(config.LocalesDir)
	if err != nil {
		slog.Error(config.ErrLocalesAccess,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyError, err,
		)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, config.LocalePrefix) || !strings.HasSuffix(name, config.LocaleSuffix) {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		langCode := strings.TrimSuffix(strings.TrimPrefix(name, config.LocalePrefix), config.LocaleSuffix)
		if langCode == "" {
			slog.Warn(config.MsgLocaleBadName,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := bundle.LoadMessageFileFS(localeFS, config.LocalesDir+"/"+name); err != nil {
			slog.Error(config.ErrLocaleLoad,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
				config.LogKeyError, err,
			)
			continue
		}
		languages = append(languages, langCode)
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, langCode,
			config.LogKeyFile, name,
		)
	}
}

// Languages lists the language codes found in the embedded locales.
func Languages() []string {
	loadOnce.Do(load)
	return append([]string(nil), languages...)
}

// Translator localizes alarm labels for one language.
// Unknown languages fall back to English.
type Translator struct {
	localizer *i18n.Localizer
}

// New returns a Translator for lang, e.g. "fr".
func New(lang string) *Translator {
	loadOnce.Do(load)
	if lang == "" {
		lang = config.DefaultLanguage
	}
	return &Translator{localizer: i18n.NewLocalizer(bundle, lang)}
}

// Label renders the alarm label for an event title.
func (t *Translator) Label(title string) string {
	msg, ok := t.localize(config.TKeyAlarmLabel, map[string]any{"Title": title})
	if !ok {
		return fmt.Sprintf(config.FallbackLabel, title)
	}
	return msg
}

// Snoozed decorates a label for an alarm ringing again after a snooze.
func (t *Translator) Snoozed(label string) string {
	msg, ok := t.localize(config.TKeyAlarmSnoozed, map[string]any{"Label": label})
	if !ok {
		return label + config.SnoozedSuffix
	}
	return msg
}

func (t *Translator) localize(key string, data map[string]any) (string, bool) {
	if t == nil || t.localizer == nil {
		return "", false
	}
	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyError, err,
		)
		return "", false
	}
	return msg, true
}
