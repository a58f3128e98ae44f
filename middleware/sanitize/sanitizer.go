package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	iframeBlock = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`)

	// abertura sem fechamento: "<script src=x>" ou "<iframe" truncado
	danglingOpener = regexp.MustCompile(`(?i)<\s*/?\s*(?:script|iframe)\b[^>]*>?`)

	dangerousScheme = regexp.MustCompile(`(?i)\b(javascript|vbscript|data|file)\s*:`)
)

// maxStripPasses limita o laço de remoção de tags sobre marcação aninhada em entidades.
const maxStripPasses = 4

// Sanitizer aplica a limpeza a strings e estruturas decodificadas de JSON.
type Sanitizer struct {
	policy *bluemonday.Policy
	skip   map[string]struct{}
}

// New cria um Sanitizer. Campos em skipFields (ex.: "password") não são alterados.
func New(skipFields ...string) *Sanitizer {
	s := &Sanitizer{
		policy: bluemonday.StrictPolicy(),
		skip:   make(map[string]struct{}, len(skipFields)),
	}
	for _, f := range skipFields {
		s.skip[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	return s
}

// Skips informa se o campo é preservado como veio.
func (s *Sanitizer) Skips(field string) bool {
	_, ok := s.skip[strings.ToLower(field)]
	return ok
}

// String aplica os passos na ordem: NUL, barras invertidas, blocos script/iframe,
// esquemas perigosos, tags restantes e espaços.
func (s *Sanitizer) String(in string) string {
	out := strings.ReplaceAll(in, "\x00", "")
	out = strings.ReplaceAll(out, `\`, "")
	out = scriptBlock.ReplaceAllString(out, "")
	out = iframeBlock.ReplaceAllString(out, "")
	out = danglingOpener.ReplaceAllString(out, "")
	out = neutralizeSchemes(out)
	out = s.stripTags(out)
	// remover tags pode juntar "java<b></b>script:" de volta
	out = neutralizeSchemes(out)
	return strings.TrimSpace(out)
}

// stripTags remove todo HTML. Cada passada tira uma camada de tags e desfaz o
// escape que a policy aplica ao texto. Texto sem marcação viva volta como
// chegou, inclusive entidades. Se a marcação não estabiliza em
// maxStripPasses, o resultado sai escapado.
func (s *Sanitizer) stripTags(in string) string {
	out := in
	for range maxStripPasses {
		stripped := html.UnescapeString(s.policy.Sanitize(out))
		if stripped == html.UnescapeString(out) {
			return out
		}
		out = stripped
	}
	return s.policy.Sanitize(out)
}

func neutralizeSchemes(in string) string {
	return dangerousScheme.ReplaceAllString(in, "${1}&#58;")
}

// Value percorre mapas e listas recursivamente. Só strings mudam.
func (s *Sanitizer) Value(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		for k, val := range t {
			if s.Skips(k) {
				continue
			}
			t[k] = s.Value(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = s.Value(val)
		}
		return t
	case []string:
		for i, val := range t {
			t[i] = s.String(val)
		}
		return t
	default:
		return v
	}
}
