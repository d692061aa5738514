package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Bundle holds every locale found under locales/<lang>.yaml.
type Bundle struct {
	translations map[string]map[string]string
	defaultLang  string
}

// NewBundle loads all locale files from fsys. defaultLang must be present;
// it is the fallback for unknown languages and missing keys.
func NewBundle(fsys fs.FS, defaultLang string) (*Bundle, error) {
	files, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list locales: %w", err)
	}
	b := &Bundle{translations: map[string]map[string]string{}, defaultLang: defaultLang}
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read translation file %s: %w", f, err)
		}
		var tr map[string]string
		if err := yaml.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("failed to parse translation file %s: %w", f, err)
		}
		b.translations[strings.TrimSuffix(path.Base(f), ".yaml")] = tr
	}
	if _, ok := b.translations[defaultLang]; !ok {
		return nil, fmt.Errorf("default locale %q not found", defaultLang)
	}
	return b, nil
}

// T translates key for lang, falling back to the default language and then
// to the key itself.
func (b *Bundle) T(lang, key string, args ...any) string {
	format, ok := b.translations[lang][key]
	if !ok {
		format, ok = b.translations[b.defaultLang][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Languages lists loaded languages, default first.
func (b *Bundle) Languages() []string {
	out := []string{b.defaultLang}
	rest := make([]string, 0, len(b.translations))
	for l := range b.translations {
		if l != b.defaultLang {
			rest = append(rest, l)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
