package executor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var templateRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*\}\}`)

// Resolve substitutes {{name}} references with the string form of vars[name].
// Dotted names reach into map values. Unknown names are left verbatim.
func Resolve(s string, vars Vars) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return templateRe.ReplaceAllStringFunc(s, func(ref string) string {
		name := templateRe.FindStringSubmatch(ref)[1]
		v, ok := lookup(vars, name)
		if !ok {
			return ref
		}
		return Stringify(v)
	})
}

// ResolveArgs resolves every string inside args, descending into nested maps and lists.
func ResolveArgs(args map[string]interface{}, vars Vars) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = resolveValue(v, vars)
	}
	return out
}

func resolveValue(v interface{}, vars Vars) interface{} {
	switch val := v.(type) {
	case string:
		return Resolve(val, vars)
	case map[string]interface{}:
		return ResolveArgs(val, vars)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, vars)
		}
		return out
	default:
		return v
	}
}

func lookup(vars Vars, name string) (interface{}, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	parts := strings.Split(name, ".")
	cur, ok := vars[parts[0]]
	if !ok {
		return nil, false
	}
	for _, p := range parts[1:] {
		m, isMap := cur.(map[string]interface{})
		if !isMap {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Stringify renders a bound value for substitution. Null is empty, strings are
// verbatim and structured values are JSON.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case map[string]interface{}, []interface{}, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
