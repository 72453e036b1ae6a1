package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`{(\$[^{}]*)}`)

// Lookup resolves ref against data. References starting with '$' are jsonpath
// expressions, anything else is a top level key.
func Lookup(data map[string]any, ref string) (any, bool) {
	if strings.HasPrefix(ref, "$") {
		value, err := jsonpath.JsonPathLookup(data, ref)
		if err != nil || value == nil {
			return nil, false
		}
		return value, true
	}
	value, ok := data[ref]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// ResolveParams returns a copy of params where every string that is a jsonpath
// reference is replaced by the referenced value and every {$.path} token inside a
// string is replaced by its text form.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	for k, v := range params {
		output[k] = resolveValue(data, v)
	}
	return output
}

func resolveValue(data map[string]any, v any) any {
	switch val := v.(type) {
	case map[string]any:
		return ResolveParams(data, val)
	case []any:
		out := make([]any, 0, len(val))
		for _, e := range val {
			out = append(out, resolveValue(data, e))
		}
		return out
	case string:
		if strings.HasPrefix(val, "$") {
			value, _ := Lookup(data, val)
			return value
		}
		return tokenPattern.ReplaceAllStringFunc(val, func(token string) string {
			value, ok := Lookup(data, token[1:len(token)-1])
			if !ok {
				return ""
			}
			return fmt.Sprintf("%v", value)
		})
	default:
		return v
	}
}
