package errs

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// DefaultLanguage is used when a key has no translation in the requested one.
const DefaultLanguage = "en"

//go:embed messages.toml
var messagesTOML string

var (
	catalogOnce sync.Once
	catalog     map[string]map[string]string
)

func loadCatalog() map[string]map[string]string {
	catalogOnce.Do(func() {
		if _, err := toml.Decode(messagesTOML, &catalog); err != nil {
			panic(fmt.Sprintf("errs: invalid message catalog: %v", err))
		}
	})
	return catalog
}

// Translate renders the message for key in lang, substituting {name}
// placeholders from args. Unknown keys render as the key itself.
func Translate(lang, key string, args map[string]any) string {
	msgs := loadCatalog()
	tmpl, ok := msgs[normalizeLang(lang)][key]
	if !ok {
		tmpl, ok = msgs[DefaultLanguage][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// normalizeLang reduces an Accept-Language style value ("es-MX,es;q=0.9") to
// its primary tag.
func normalizeLang(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, ",;"); i >= 0 {
		lang = lang[:i]
	}
	if i := strings.IndexByte(lang, '-'); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return DefaultLanguage
	}
	return strings.ToLower(lang)
}
