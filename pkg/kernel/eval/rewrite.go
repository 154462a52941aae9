package eval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// placeholder is one {name} occurrence in a snippet.
type placeholder struct {
	start, end int // byte offsets, end exclusive
	name       string
}

// scanPlaceholder reports the placeholder starting at s[i] == '{', if any.
// Map literals like {a: 1} are not placeholders because ':' and spaces
// between tokens do not form a valid name.
func scanPlaceholder(s string, i int) (placeholder, bool) {
	j := strings.IndexByte(s[i+1:], '}')
	if j < 0 {
		return placeholder{}, false
	}
	name := strings.TrimSpace(s[i+1 : i+1+j])
	if !vars.ValidName(name) {
		return placeholder{}, false
	}
	return placeholder{start: i, end: i + j + 2, name: name}, true
}

// References returns the distinct placeholder names in text, in order of
// first appearance.
func References(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if p, ok := scanPlaceholder(text, i); ok {
			if !seen[p.name] {
				seen[p.name] = true
				out = append(out, p.name)
			}
			i = p.end - 1
		}
	}
	return out
}

// rewrite replaces placeholders outside string literals with generated
// identifiers and returns their bindings. Placeholders inside a quoted
// literal are substituted with the value's text, escaped for that quote.
func rewrite(snippet string, env map[string]any) (string, map[string]any, error) {
	var (
		b     strings.Builder
		refs  = make(map[string]any)
		ids   = make(map[string]string)
		quote byte
	)
	for i := 0; i < len(snippet); i++ {
		c := snippet[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`' && i+1 < len(snippet):
				b.WriteByte(c)
				b.WriteByte(snippet[i+1])
				i++
				continue
			case c == quote:
				quote = 0
			case c == '{':
				if p, ok := scanPlaceholder(snippet, i); ok {
					v, found := env[p.name]
					if !found {
						return "", nil, &UnresolvedError{Name: p.name}
					}
					text, err := Stringify(v)
					if err != nil {
						return "", nil, err
					}
					b.WriteString(escapeFor(text, quote))
					i = p.end - 1
					continue
				}
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			if p, ok := scanPlaceholder(snippet, i); ok {
				v, found := env[p.name]
				if !found {
					return "", nil, &UnresolvedError{Name: p.name}
				}
				id, seen := ids[p.name]
				if !seen {
					id = "_ref" + strconv.Itoa(len(ids))
					ids[p.name] = id
					refs[id] = v
				}
				b.WriteString(id)
				i = p.end - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), refs, nil
}

// identifiers returns the distinct identifier tokens of an expression
// outside string literals, sorted. Member names after a dot are included;
// the result only has to cover every variable the expression can load.
func identifiers(src string) []string {
	seen := make(map[string]bool)
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' && quote != '`' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && (isIdentStart(src[j]) || src[j] >= '0' && src[j] <= '9') {
				j++
			}
			seen[src[i:j]] = true
			i = j - 1
		case c >= '0' && c <= '9':
			// skip the rest of a number so 1e5 or 0x1F yield no identifier
			for i+1 < len(src) && (isIdentStart(src[i+1]) || src[i+1] >= '0' && src[i+1] <= '9') {
				i++
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func escapeFor(text string, quote byte) string {
	switch quote {
	case '"':
		q := strconv.Quote(text)
		return q[1 : len(q)-1]
	case '\'':
		text = strings.ReplaceAll(text, `\`, `\\`)
		return strings.ReplaceAll(text, `'`, `\'`)
	default:
		return text
	}
}

// Interpolate substitutes every {name} placeholder in text with the text
// form of the variable's value. Text without placeholders is returned as is.
func Interpolate(text string, env map[string]any) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			if p, ok := scanPlaceholder(text, i); ok {
				v, found := env[p.name]
				if !found {
					return "", &UnresolvedError{Name: p.name}
				}
				s, err := Stringify(v)
				if err != nil {
					return "", err
				}
				b.WriteString(s)
				i = p.end - 1
				continue
			}
		}
		b.WriteByte(text[i])
	}
	return b.String(), nil
}

// Stringify renders a value for text interpolation. Scalars use their
// natural form; lists and maps are rendered as JSON; nil is empty.
func Stringify(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch vars.KindOf(v) {
	case vars.TypeList, vars.TypeMap:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("render %T: %w", v, err)
		}
		return string(data), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v), nil
	}
	return s, nil
}
