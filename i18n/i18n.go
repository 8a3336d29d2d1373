// Package i18n translates reskit's own messages.
//
// Catalogs are gettext .po files embedded from
// locales/<lang>/LC_MESSAGES/reskit.po. Init picks the catalog closest to
// the user's language; without one, T and N return their arguments.
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
	"golang.org/x/text/language"
)

//go:embed all:locales
var locales embed.FS

const domain = "reskit"

var (
	po     *gotext.Locale
	active string
)

// Init selects the catalog for lang ("de", "pt_BR", "de_AT.UTF-8"). An
// empty lang is read from the environment. Call it once at startup.
func Init(lang string) {
	if lang == "" {
		lang = envLanguage()
	}
	active = match(lang, Available())
	if active == "" {
		po = nil
		return
	}
	po = gotext.NewLocaleFSWithPath(active, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the catalog chosen by Init, or "" when messages are
// shown untranslated.
func Language() string { return active }

// T translates msgid.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a message with plural forms, chosen by the catalog's plural
// formula for n.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// Available returns the languages with an embedded catalog, sorted.
func Available() []string {
	dirs, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil
	}
	var langs []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if _, err := fs.Stat(locales, path.Join("locales", d.Name(), "LC_MESSAGES", domain+".po")); err == nil {
			langs = append(langs, d.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// match returns the entry of catalogs that best serves lang, or "" when
// none is a reasonable match.
func match(lang string, catalogs []string) string {
	if i := strings.IndexByte(lang, '.'); i >= 0 {
		lang = lang[:i]
	}
	want, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil || len(catalogs) == 0 {
		return ""
	}
	// Index 0 is the untranslated fallback.
	tags := []language.Tag{language.Und}
	for _, c := range catalogs {
		tags = append(tags, language.Make(c))
	}
	_, i, conf := language.NewMatcher(tags).Match(want)
	if i == 0 || conf == language.No {
		return ""
	}
	return catalogs[i-1]
}

// envLanguage returns the first usable language of LANGUAGE, LC_ALL,
// LC_MESSAGES and LANG, in gettext order. "C" and "POSIX" mean no
// translation and are skipped.
func envLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		if i := strings.IndexByte(val, '.'); i >= 0 {
			val = val[:i]
		}
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		return val
	}
	return "en"
}
