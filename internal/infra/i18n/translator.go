package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const DefaultLanguage = "en"

// Translator resolves message keys into fmt templates for one language.
type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

var (
	defaultOnce sync.Once
	defaultT    *Translator
)

// Default returns the embedded English catalog.
func Default() *Translator {
	defaultOnce.Do(func() {
		t, err := NewTranslator(LocalesFS, DefaultLanguage)
		if err != nil {
			panic(err)
		}
		defaultT = t
	})
	return defaultT
}

// Load returns the embedded catalog for langCode, or English when there is none.
func Load(langCode string) (*Translator, error) {
	if langCode == "" || langCode == DefaultLanguage {
		return Default(), nil
	}
	return NewTranslator(LocalesFS, langCode)
}

func (t *Translator) Lang() string { return t.lang }

// T formats the template stored under key. Unknown keys come back verbatim.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Has reports whether key is present.
func (t *Translator) Has(key string) bool {
	_, ok := t.translations[key]
	return ok
}
