package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope() map[string]any {
	return map[string]any{
		"account_id": "123456789012",
		"region":     "eu-west-1",
		"item": map[string]any{
			"id":   "user-1",
			"tags": []any{"alpha", "beta"},
			"policy": map[string]any{
				"statements": []any{
					map[string]any{"effect": "Allow"},
					map[string]any{"effect": "Deny"},
				},
			},
		},
		"count": 3,
	}
}

func TestResolveInterpolation(t *testing.T) {
	got, err := Resolve("arn:{{ item.id }}:{{ region }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "arn:user-1:eu-west-1", got)
}

func TestResolveWholePlaceholderKeepsType(t *testing.T) {
	got, err := Resolve("{{ item.tags }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, []any{"alpha", "beta"}, got)

	got, err = Resolve("{{ count }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestResolveIndexedPath(t *testing.T) {
	got, err := Resolve("{{ item.policy.statements[1].effect }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "Deny", got)
}

func TestResolveNoPlaceholders(t *testing.T) {
	got, err := Resolve("plain string", testScope())
	require.NoError(t, err)
	assert.Equal(t, "plain string", got)
}

func TestResolveMissingVariableIsHardError(t *testing.T) {
	_, err := Resolve("{{ item.nope }}", testScope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item.nope")

	_, err = Resolve("prefix {{ ghost }} suffix", testScope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveParams(t *testing.T) {
	params := map[string]any{
		"UserName": "{{ item.id }}",
		"MaxItems": 100,
		"Filters": []any{
			map[string]any{"Name": "region", "Values": []any{"{{ region }}"}},
		},
	}
	resolved, err := ResolveParams(params, testScope())
	require.NoError(t, err)
	assert.Equal(t, "user-1", resolved["UserName"])
	assert.Equal(t, 100, resolved["MaxItems"])

	filters := resolved["Filters"].([]any)
	values := filters[0].(map[string]any)["Values"].([]any)
	assert.Equal(t, "eu-west-1", values[0])
}

func TestResolveParamsNamesFailingParameter(t *testing.T) {
	_, err := ResolveParams(map[string]any{"RoleName": "{{ missing }}"}, testScope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parameter "RoleName"`)
}

func TestLookupPathMissingIsNotError(t *testing.T) {
	_, ok := LookupPath(testScope(), "item.absent.deeper")
	assert.False(t, ok)

	_, ok = LookupPath(testScope(), "item.tags[9]")
	assert.False(t, ok)
}
