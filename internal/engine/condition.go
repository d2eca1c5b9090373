package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"complyscan/internal/models"
)

// Evaluate applies one operator to a resolved value. An absent field arrives
// as nil and is only meaningful to exists/not_exists; every other operator
// treats it as non-matching. Numeric type mismatches evaluate to false with
// a diagnostic warning so one bad field cannot abort a scan; hard errors are
// reserved for undecodable timestamps and invalid runtime regexes.
func Evaluate(value any, op models.Operator, expected any) (bool, error) {
	switch op {
	case models.OpExists:
		return value != nil, nil
	case models.OpNotExists:
		return value == nil, nil

	case models.OpEquals:
		return looseEqual(value, expected), nil
	case models.OpNotEquals:
		return !looseEqual(value, expected), nil

	case models.OpContains:
		return contains(value, expected), nil
	case models.OpNotContains:
		return !contains(value, expected), nil

	case models.OpIn:
		return contains(expected, value), nil
	case models.OpNotIn:
		return !contains(expected, value), nil

	case models.OpGt:
		return compareNumeric(value, expected, func(a, b float64) bool { return a > b }), nil
	case models.OpGte:
		return compareNumeric(value, expected, func(a, b float64) bool { return a >= b }), nil
	case models.OpLt:
		return compareNumeric(value, expected, func(a, b float64) bool { return a < b }), nil
	case models.OpLte:
		return compareNumeric(value, expected, func(a, b float64) bool { return a <= b }), nil

	case models.OpAgeDays:
		if value == nil {
			return false, nil
		}
		t, err := parseTimestamp(value)
		if err != nil {
			return false, fmt.Errorf("age_days: %w", err)
		}
		threshold, ok := toFloat(expected)
		if !ok {
			logDiagnostic("age_days: expected value %v (%T) is not numeric", expected, expected)
			return false, nil
		}
		age := time.Since(t).Hours() / 24
		return age <= threshold, nil

	case models.OpNotExpired:
		if value == nil {
			return false, nil
		}
		t, err := parseTimestamp(value)
		if err != nil {
			return false, fmt.Errorf("not_expired: %w", err)
		}
		return t.After(time.Now()), nil

	case models.OpRegex, models.OpNotRegex:
		matched, err := regexMatch(value, expected)
		if err != nil {
			return false, err
		}
		if op == models.OpNotRegex {
			return !matched, nil
		}
		return matched, nil
	}

	return false, fmt.Errorf("unknown operator %q", op)
}

// looseEqual compares across the type wobble introduced by YAML and JSON
// round trips: ints vs floats, and otherwise deep equality.
func looseEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && as == bs
}

// contains covers both forms: list-contains-element and
// string-contains-substring.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case nil:
		return false
	case string:
		if s, ok := needle.(string); ok {
			return strings.Contains(h, s)
		}
		return false
	case []any:
		for _, elem := range h {
			if looseEqual(elem, needle) {
				return true
			}
		}
		return false
	case []string:
		for _, elem := range h {
			if looseEqual(elem, needle) {
				return true
			}
		}
	}
	return false
}

func compareNumeric(value, expected any, cmp func(a, b float64) bool) bool {
	a, aok := toFloat(value)
	b, bok := toFloat(expected)
	if !aok || !bok {
		logDiagnostic("numeric comparison skipped: %v (%T) vs %v (%T)", value, value, expected, expected)
		return false
	}
	return cmp(a, b)
}

func regexMatch(value, expected any) (bool, error) {
	pattern, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("regex operator expects a string pattern, got %T", expected)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	s, ok := value.(string)
	if !ok {
		return false, nil
	}
	return re.MatchString(s), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(value any) (time.Time, error) {
	if t, ok := value.(time.Time); ok {
		return t, nil
	}
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("value %v (%T) is not a timestamp", value, value)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
