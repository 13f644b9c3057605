// Package i18n resolves localized operator-facing messages.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	Lookup(key string) (string, bool)
	Lang() string
}

// Manager stores all available translations.
type Manager struct {
	translations map[string]map[string]string
	defaultLang  string
	matcher      language.Matcher
	tags         []string
}

// Load loads the catalogs compiled into the binary.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, "locales", defaultLang)
}

// LoadFS loads translations from the YAML files in dir.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	catalog, err := parseDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = "en"
	}

	if _, ok := catalog[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	// The default language goes first so the matcher falls back to it.
	tags := []string{defaultLang}
	supported := []language.Tag{language.Make(defaultLang)}
	for lang := range catalog {
		if lang == defaultLang {
			continue
		}
		tags = append(tags, lang)
		supported = append(supported, language.Make(lang))
	}

	return &Manager{
		translations: catalog,
		defaultLang:  defaultLang,
		matcher:      language.NewMatcher(supported),
		tags:         tags,
	}, nil
}

// Negotiate picks the best loaded language for an Accept-Language header.
func (m *Manager) Negotiate(acceptLanguage string) Translator {
	if m == nil {
		return translator{}
	}

	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return m.Translator(m.defaultLang)
	}

	_, idx, _ := m.matcher.Match(prefs...)
	return m.Translator(m.tags[idx])
}

// Translator returns a translator for the requested language.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(norm, "-_"); i > 0 && m.translations[norm] == nil {
		norm = norm[:i]
	}
	if norm == "" || m.translations[norm] == nil {
		norm = m.defaultLang
	}

	return translator{
		lang:         norm,
		fallback:     m.defaultLang,
		translations: m.translations,
	}
}

// Languages returns the loaded languages in sorted order.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(m.translations))
}

type translator struct {
	lang         string
	fallback     string
	translations map[string]map[string]string
}

func (t translator) Lang() string {
	return t.lang
}

// T returns the translation for key, falling back to the default language
// and then to key itself.
func (t translator) T(key string) string {
	if value, ok := t.Lookup(key); ok {
		return value
	}
	return strings.TrimSpace(key)
}

func (t translator) Lookup(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	for _, lang := range []string{t.lang, t.fallback} {
		if value := t.translations[lang][key]; value != "" {
			return value, true
		}
	}

	return "", false
}

func parseDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	catalog := make(map[string]map[string]string)
	files := 0

	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files++

		parsed, err := parseFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for lang, messages := range parsed {
			if catalog[lang] == nil {
				catalog[lang] = make(map[string]string, len(messages))
			}
			maps.Copy(catalog[lang], messages)
		}
	}

	if files == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	return catalog, nil
}

// parseFile reads a catalog of the form lang -> nested keys -> message.
func parseFile(fsys fs.FS, name string) (map[string]map[string]string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
	}

	catalog := make(map[string]map[string]string, len(raw))
	for lang, tree := range raw {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}

		messages := make(map[string]string)
		flatten("", tree, messages)
		if len(messages) > 0 {
			catalog[lang] = messages
		}
	}

	return catalog, nil
}

func flatten(prefix string, tree map[string]any, out map[string]string) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}

		switch v := value.(type) {
		case string:
			out[key] = v
		case map[string]any:
			flatten(key, v, out)
		}
	}
}
