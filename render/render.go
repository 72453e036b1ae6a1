package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohitkumar/chatflow/util"
)

var placeholder = regexp.MustCompile(`{{\s*([^{}]*?)\s*}}`)

// Placeholders returns the trimmed text of every {{ ... }} in template.
func Placeholders(template string) []string {
	matches := placeholder.FindAllStringSubmatch(template, -1)
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}

// Resolve evaluates every placeholder of template against vars and returns a flat
// map from placeholder text to value. A placeholder may be a fallback chain
// "a or b or 'default'": the first term with a non empty value wins.
func Resolve(template string, vars map[string]any) map[string]string {
	values := make(map[string]string)
	for _, key := range Placeholders(template) {
		if _, done := values[key]; done {
			continue
		}
		values[key] = resolveChain(key, vars)
	}
	return values
}

func resolveChain(chain string, vars map[string]any) string {
	for _, term := range strings.Split(chain, " or ") {
		term = strings.TrimSpace(term)
		if literal, ok := unquote(term); ok {
			return literal
		}
		if value, ok := lookup(vars, term); ok {
			if text := toText(value); text != "" {
				return text
			}
		}
	}
	return ""
}

func unquote(term string) (string, bool) {
	if len(term) < 2 {
		return "", false
	}
	first, last := term[0], term[len(term)-1]
	if (first == '\'' || first == '"') && first == last {
		return term[1 : len(term)-1], true
	}
	return "", false
}

func lookup(vars map[string]any, ref string) (any, bool) {
	if !strings.HasPrefix(ref, "$") && strings.Contains(ref, ".") {
		ref = "$." + ref
	}
	return util.Lookup(vars, ref)
}

func toText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Render replaces each placeholder with values[text]. It performs direct key
// substitution only; unknown keys render empty.
func Render(template string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		return values[key]
	})
}
