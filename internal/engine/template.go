package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolve substitutes {{ path.to.value }} placeholders in a template against
// the given variable scope. A template that is exactly one placeholder
// returns the referenced value with its original type; otherwise placeholders
// are interpolated into the surrounding string. An unresolved placeholder is
// a hard error so a broken reference surfaces at the call that caused it,
// not downstream in the provider.
func Resolve(template string, scope map[string]any) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template, nil
	}

	// Single whole-string placeholder: pass through the raw value so lists
	// and numbers are not stringified.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(template) {
		path := template[matches[0][2]:matches[0][3]]
		value, ok := LookupPath(scope, path)
		if !ok {
			return nil, fmt.Errorf("unresolved template variable %q", path)
		}
		return value, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		path := template[m[2]:m[3]]
		value, ok := LookupPath(scope, path)
		if !ok {
			return nil, fmt.Errorf("unresolved template variable %q", path)
		}
		b.WriteString(template[last:m[0]])
		b.WriteString(stringify(value))
		last = m[1]
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

// ResolveParams deep-resolves every string value in a parameter map,
// recursing into nested maps and slices. Non-string leaves pass through
// unchanged.
func ResolveParams(params map[string]any, scope map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		r, err := resolveValue(value, scope)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		resolved[key] = r
	}
	return resolved, nil
}

func resolveValue(value any, scope map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return Resolve(v, scope)
	case map[string]any:
		return ResolveParams(v, scope)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			r, err := resolveValue(elem, scope)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// LookupPath walks a dotted path ("a.b[0].c") through nested maps and
// slices. The second return is false when any segment is missing, which
// callers treat either as a hard error (templates) or as an absent-field
// sentinel (conditions).
func LookupPath(root any, path string) (any, bool) {
	current := root
	for _, segment := range strings.Split(path, ".") {
		name, indexes, err := splitSegment(segment)
		if err != nil {
			return nil, false
		}
		if name != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[name]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range indexes {
			list, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(list) {
				return nil, false
			}
			current = list[idx]
		}
	}
	return current, true
}

// splitSegment parses one path segment with optional bracket indexes,
// e.g. "items[0][1]" -> ("items", [0, 1]).
func splitSegment(segment string) (string, []int, error) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, nil, nil
	}
	name := segment[:open]
	rest := segment[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed path segment %q", segment)
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return "", nil, fmt.Errorf("malformed path segment %q", segment)
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, fmt.Errorf("malformed index in path segment %q", segment)
		}
		indexes = append(indexes, idx)
		rest = rest[close+1:]
	}
	return name, indexes, nil
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
