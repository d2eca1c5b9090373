package exceptions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"complyscan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingRecord(checkID, accountID, resourceID string) models.ResultRecord {
	return models.ResultRecord{
		CheckID:    checkID,
		Severity:   models.High,
		ResourceID: resourceID,
		Scope:      models.ScopeContext{AccountID: accountID, Region: "eu-west-1", Service: "iam"},
		Result:     models.StatusFail,
		Evidence:   map[string]any{"mfa": nil},
	}
}

func fixedFilter(rules []models.ExceptionRule, at time.Time) *Filter {
	f := NewFilter(rules)
	f.now = func() time.Time { return at }
	return f
}

func TestMarkSkippedRewritesResult(t *testing.T) {
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []models.ExceptionRule{{
		ID:        "exc-1",
		RuleID:    "aws.iam.user_mfa_enabled",
		Selector:  models.ExceptionSelector{AccountID: "111111111111"},
		Effect:    models.EffectMarkSkipped,
		Reason:    "break-glass account",
		ExpiresAt: &expiry,
	}}
	f := fixedFilter(rules, expiry.AddDate(0, -6, 0))

	out := f.Apply([]models.ResultRecord{failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root")})
	require.Len(t, out, 1)
	assert.Equal(t, models.StatusSkip, out[0].Result)
	assert.Equal(t, "exc-1: break-glass account", out[0].Evidence["exception"])
}

func TestExpiredExceptionIsInert(t *testing.T) {
	expiry := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []models.ExceptionRule{{
		ID:        "exc-1",
		RuleID:    "aws.iam.user_mfa_enabled",
		Effect:    models.EffectMarkSkipped,
		ExpiresAt: &expiry,
	}}
	f := fixedFilter(rules, expiry.AddDate(0, 6, 0))

	record := failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root")
	out := f.Apply([]models.ResultRecord{record})
	require.Len(t, out, 1)
	assert.Equal(t, models.StatusFail, out[0].Result)
	assert.NotContains(t, out[0].Evidence, "exception")
}

func TestSkipCheckDropsRecord(t *testing.T) {
	rules := []models.ExceptionRule{{
		ID:     "exc-1",
		RuleID: "aws.iam.access_key_rotated",
		Effect: models.EffectSkipCheck,
	}}
	f := NewFilter(rules)

	out := f.Apply([]models.ResultRecord{
		failingRecord("aws.iam.access_key_rotated", "111111111111", "key-1"),
		failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root"),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "aws.iam.user_mfa_enabled", out[0].CheckID)
}

func TestExemptKeepsStatusAndFlags(t *testing.T) {
	rules := []models.ExceptionRule{{
		ID:     "exc-1",
		RuleID: "aws.iam.user_mfa_enabled",
		Effect: models.EffectExempt,
		Reason: "approved ticket SEC-42",
	}}
	f := NewFilter(rules)

	out := f.Apply([]models.ResultRecord{failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root")})
	require.Len(t, out, 1)
	assert.Equal(t, models.StatusFail, out[0].Result)
	assert.Equal(t, true, out[0].Evidence["exempted"])
	assert.Equal(t, "exc-1: approved ticket SEC-42", out[0].Evidence["exception"])
}

func TestSelectorWildcardsAndExactMatch(t *testing.T) {
	rules := []models.ExceptionRule{{
		ID:       "exc-1",
		RuleID:   "aws.iam.user_mfa_enabled",
		Selector: models.ExceptionSelector{AccountID: "1111*", ResourceID: "svc-*"},
		Effect:   models.EffectSkipCheck,
	}}
	f := NewFilter(rules)

	out := f.Apply([]models.ResultRecord{
		failingRecord("aws.iam.user_mfa_enabled", "111111111111", "svc-deploy"),
		failingRecord("aws.iam.user_mfa_enabled", "111111111111", "alice"),
		failingRecord("aws.iam.user_mfa_enabled", "222222222222", "svc-deploy"),
	})
	require.Len(t, out, 2)
	for _, record := range out {
		assert.False(t, record.Scope.AccountID == "111111111111" && record.ResourceID == "svc-deploy")
	}
}

func TestRuleIDGlobMatchesCheckFamily(t *testing.T) {
	rules := []models.ExceptionRule{{
		ID:     "exc-1",
		RuleID: "aws.iam.*",
		Effect: models.EffectSkipCheck,
	}}
	f := NewFilter(rules)

	out := f.Apply([]models.ResultRecord{
		failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root"),
		failingRecord("aws.iam.access_key_rotated", "111111111111", "key-1"),
		failingRecord("aws.s3.bucket_encrypted", "111111111111", "bucket"),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "aws.s3.bucket_encrypted", out[0].CheckID)
}

func TestDeclarationOrderIsDeterministic(t *testing.T) {
	// Two rules match the same record. The first one declared decides.
	rules := []models.ExceptionRule{
		{ID: "first", RuleID: "aws.iam.user_mfa_enabled", Effect: models.EffectSkipCheck},
		{ID: "second", RuleID: "aws.iam.user_mfa_enabled", Effect: models.EffectMarkSkipped},
	}
	f := NewFilter(rules)

	input := []models.ResultRecord{failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root")}
	for i := 0; i < 5; i++ {
		assert.Empty(t, f.Apply(input))
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	rules := []models.ExceptionRule{{
		ID:     "exc-1",
		RuleID: "*",
		Effect: models.EffectMarkSkipped,
	}}
	f := NewFilter(rules)

	input := []models.ResultRecord{failingRecord("aws.iam.user_mfa_enabled", "111111111111", "root")}
	out := f.Apply(input)

	require.Len(t, out, 1)
	assert.Equal(t, models.StatusSkip, out[0].Result)
	assert.Equal(t, models.StatusFail, input[0].Result)
	assert.NotContains(t, input[0].Evidence, "exception")
}

func TestLoadFromFile(t *testing.T) {
	doc := `
exceptions:
  - rule_id: aws.iam.user_mfa_enabled
    selector:
      account_id: '111111111111'
    effect: mark_skipped
    reason: break-glass account
    expires_at: 2027-06-30T00:00:00Z
  - id: sandbox-exempt
    rule_id: '*'
    selector:
      account_id: 'sandbox-*'
    effect: exempt_results
`
	path := filepath.Join(t.TempDir(), "exceptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	rules, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "exception-1", rules[0].ID)
	require.NotNil(t, rules[0].ExpiresAt)
	assert.Equal(t, 2027, rules[0].ExpiresAt.Year())
	assert.Equal(t, "sandbox-exempt", rules[1].ID)
	assert.Equal(t, models.EffectExempt, rules[1].Effect)
}

func TestLoadRejectsUnknownEffect(t *testing.T) {
	doc := `
exceptions:
  - rule_id: x
    effect: vanish
`
	path := filepath.Join(t.TempDir(), "exceptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown effect "vanish"`)
}
