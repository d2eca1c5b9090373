package engine

import (
	"testing"
	"time"

	"complyscan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateOperatorTable(t *testing.T) {
	fortyFiveDaysAgo := time.Now().AddDate(0, 0, -45).Format(time.RFC3339)
	hundredDaysAgo := time.Now().AddDate(0, 0, -100).Format(time.RFC3339)
	nextYear := time.Now().AddDate(1, 0, 0).Format(time.RFC3339)

	tests := []struct {
		name     string
		value    any
		op       models.Operator
		expected any
		want     bool
	}{
		{"exists nil", nil, models.OpExists, nil, false},
		{"exists value", "x", models.OpExists, nil, true},
		{"not_exists nil", nil, models.OpNotExists, nil, true},

		{"equals strings", "Active", models.OpEquals, "Active", true},
		{"equals bool", true, models.OpEquals, true, true},
		{"equals int float wobble", 14, models.OpEquals, 14.0, true},
		{"not_equals", "Inactive", models.OpNotEquals, "Active", true},

		{"contains list", []any{"a", "b"}, models.OpContains, "a", true},
		{"contains list miss", []any{"a", "b"}, models.OpContains, "c", false},
		{"contains string", "wildcard*action", models.OpContains, "*", true},
		{"not_contains nil", nil, models.OpNotContains, "a", true},

		{"in", "b", models.OpIn, []any{"a", "b"}, true},
		{"not_in", "z", models.OpNotIn, []any{"a", "b"}, true},

		{"gt", 10, models.OpGt, 5, true},
		{"gte equal", 5, models.OpGte, 5, true},
		{"lt string coercion", "3", models.OpLt, 10, true},
		{"lte mismatch fails closed", "not-a-number", models.OpLte, 10, false},

		{"age_days young", fortyFiveDaysAgo, models.OpAgeDays, 90, true},
		{"age_days old", hundredDaysAgo, models.OpAgeDays, 90, false},
		{"age_days nil", nil, models.OpAgeDays, 90, false},

		{"not_expired past", "2020-01-01T00:00:00Z", models.OpNotExpired, nil, false},
		{"not_expired future", nextYear, models.OpNotExpired, nil, true},

		{"regex", "admin-role", models.OpRegex, "^admin-", true},
		{"regex non-string value", 42, models.OpRegex, "^admin-", false},
		{"not_regex", "reader", models.OpNotRegex, "^admin-", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.value, tt.op, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateHardErrors(t *testing.T) {
	_, err := Evaluate("not a timestamp", models.OpAgeDays, 90)
	require.Error(t, err)

	_, err = Evaluate("value", models.OpRegex, "([unclosed")
	require.Error(t, err)

	_, err = Evaluate("value", models.Operator("levenshtein"), nil)
	require.Error(t, err)
}

func TestEvaluateDateOnlyTimestamp(t *testing.T) {
	got, err := Evaluate("2020-01-01", models.OpNotExpired, nil)
	require.NoError(t, err)
	assert.False(t, got)
}
