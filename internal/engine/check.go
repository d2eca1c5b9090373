package engine

import (
	"fmt"
	"time"

	"complyscan/internal/models"
)

// CheckRunner evaluates a rule set's checks against a built inventory. It is
// pure: no network, no shared state, so checks for unrelated scopes can run
// concurrently.
type CheckRunner struct {
	RuleSet *models.RuleSet
}

// Run produces exactly one ResultRecord per (check, inventory item). A check
// whose for_each inventory is absent or empty produces nothing: many checks
// are conditionally inapplicable per account, and that is not an error.
func (r *CheckRunner) Run(scope models.ScopeContext, inventory Inventory) []models.ResultRecord {
	var records []models.ResultRecord
	now := time.Now().UTC()

	for _, check := range r.RuleSet.Checks {
		items := inventory[check.ForEach]
		if len(items) == 0 {
			logDiagnostic("check %s: no inventory under %s, emitting nothing", check.CheckID, check.ForEach)
			continue
		}
		for i, item := range items {
			records = append(records, r.runOne(check, item, i, scope, now))
		}
	}
	return records
}

func (r *CheckRunner) runOne(check models.CheckDef, item map[string]any, index int, scope models.ScopeContext, now time.Time) models.ResultRecord {
	evidence := make(map[string]any)
	record := models.ResultRecord{
		CheckID:      check.CheckID,
		Title:        check.Title,
		Severity:     check.Severity,
		ResourceID:   resourceField(check.ResourceID, item, resourceIDKeys, fmt.Sprintf("%s[%d]", check.ForEach, index)),
		ResourceName: resourceField(check.ResourceName, item, resourceNameKeys, ""),
		Scope:        scope,
		Evidence:     evidence,
		Timestamp:    now,
	}

	passed, err := evaluateLogic(check, item, evidence)
	switch {
	case err != nil:
		record.Result = models.StatusError
		evidence["error"] = err.Error()
	case passed:
		record.Result = models.StatusPass
	default:
		record.Result = models.StatusFail
	}
	return record
}

func evaluateLogic(check models.CheckDef, item map[string]any, evidence map[string]any) (bool, error) {
	if check.Logic == models.LogicOr {
		for _, node := range check.Conditions {
			ok, err := evaluateNode(item, node, evidence)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	for _, node := range check.Conditions {
		ok, err := evaluateNode(item, node, evidence)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateNode(item map[string]any, node models.ConditionNode, evidence map[string]any) (bool, error) {
	switch {
	case len(node.All) > 0:
		for _, sub := range node.All {
			ok, err := evaluateNode(item, sub, evidence)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case len(node.Any) > 0:
		for _, sub := range node.Any {
			ok, err := evaluateNode(item, sub, evidence)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	default:
		value, _ := LookupPath(item, node.Path)
		evidence[node.Path] = value
		return Evaluate(value, node.Operator, node.Expected)
	}
}

var (
	resourceIDKeys   = []string{"id", "resource_id", "arn", "name"}
	resourceNameKeys = []string{"name", "resource_name", "id"}
)

// resourceField resolves the check's identity template against the item,
// falling back to conventional item keys and finally to the given default.
func resourceField(template string, item map[string]any, fallbackKeys []string, fallback string) string {
	if template != "" {
		resolved, err := Resolve(template, map[string]any{"item": item})
		if err == nil {
			return stringify(resolved)
		}
		logDiagnostic("resource identity template %q: %v", template, err)
	}
	for _, key := range fallbackKeys {
		if v, ok := item[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}
