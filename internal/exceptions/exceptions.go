package exceptions

import (
	"fmt"
	"os"
	"path"
	"time"

	"complyscan/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads a suppression document: a YAML list of exception rules
// under a top-level "exceptions" key.
func LoadFromFile(filePath string) ([]models.ExceptionRule, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading exceptions file: %w", err)
	}

	var doc struct {
		Exceptions []models.ExceptionRule `yaml:"exceptions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing exceptions file: %w", err)
	}

	for i := range doc.Exceptions {
		e := &doc.Exceptions[i]
		if e.RuleID == "" {
			return nil, fmt.Errorf("exception #%d missing rule_id", i+1)
		}
		if e.ID == "" {
			e.ID = fmt.Sprintf("exception-%d", i+1)
		}
		if !e.Effect.Valid() {
			return nil, fmt.Errorf("exception %q has unknown effect %q", e.ID, e.Effect)
		}
	}
	return doc.Exceptions, nil
}

// Filter applies exception rules to check records after execution. Rules are
// applied in declaration order, which keeps repeated runs byte-identical for
// auditability.
type Filter struct {
	rules []models.ExceptionRule
	now   func() time.Time
}

// NewFilter builds a filter over an already-loaded rule list. A nil or empty
// list yields a pass-through filter.
func NewFilter(rules []models.ExceptionRule) *Filter {
	return &Filter{rules: rules, now: time.Now}
}

// Apply rewrites or drops records matched by non-expired exceptions. Records
// nothing matches pass through untouched.
func (f *Filter) Apply(records []models.ResultRecord) []models.ResultRecord {
	if len(f.rules) == 0 {
		return records
	}
	now := f.now()

	out := make([]models.ResultRecord, 0, len(records))
	for _, record := range records {
		keep := true
		for i := range f.rules {
			rule := &f.rules[i]
			if rule.Expired(now) {
				continue
			}
			if !matchField(rule.RuleID, record.CheckID) {
				continue
			}
			if !rule.Selector.Matches(record) {
				continue
			}

			switch rule.Effect {
			case models.EffectSkipCheck:
				keep = false
			case models.EffectMarkSkipped:
				record = record.WithEvidence("exception", exceptionNote(rule))
				record.Result = models.StatusSkip
			case models.EffectExempt:
				record = record.WithEvidence("exempted", true)
				record = record.WithEvidence("exception", exceptionNote(rule))
			}
			if !keep {
				break
			}
		}
		if keep {
			out = append(out, record)
		}
	}
	return out
}

func exceptionNote(rule *models.ExceptionRule) string {
	if rule.Reason == "" {
		return rule.ID
	}
	return fmt.Sprintf("%s: %s", rule.ID, rule.Reason)
}

// matchField follows the same convention as selector fields: empty or "*"
// matches everything, otherwise exact or shell-style glob ("aws.iam.*").
func matchField(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if pattern == value {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}
