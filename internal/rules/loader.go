package rules

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"complyscan/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadRuleSetFromFile loads one rule document from a YAML file.
func LoadRuleSetFromFile(filePath string) (*models.RuleSet, error) {
	_, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("rule document not found: %s", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading rule document: %w", err)
	}

	var ruleSet models.RuleSet
	err = yaml.Unmarshal(data, &ruleSet)
	if err != nil {
		return nil, fmt.Errorf("error parsing rule document: %w", err)
	}

	if err := validateRuleSet(&ruleSet); err != nil {
		return nil, fmt.Errorf("invalid rule document: %w", err)
	}

	return &ruleSet, nil
}

// validateRuleSet checks the document structurally and normalizes defaults.
// Everything that would otherwise fail mid-scan (unknown operators, dangling
// for_each references, discovery cycles) fails here, before any network call.
func validateRuleSet(ruleSet *models.RuleSet) error {
	if ruleSet.Provider == "" {
		return fmt.Errorf("missing provider")
	}
	if ruleSet.Service == "" {
		return fmt.Errorf("missing service")
	}
	switch ruleSet.Scope {
	case "":
		ruleSet.Scope = models.RegionalScope
	case models.GlobalScope, models.RegionalScope:
	default:
		return fmt.Errorf("unknown scope %q (want global or regional)", ruleSet.Scope)
	}

	if len(ruleSet.Discoveries) == 0 {
		return fmt.Errorf("rule document has no discoveries")
	}

	ids := make(map[string]bool, len(ruleSet.Discoveries))
	for i := range ruleSet.Discoveries {
		d := &ruleSet.Discoveries[i]
		if d.DiscoveryID == "" {
			return fmt.Errorf("discovery #%d missing discovery_id", i+1)
		}
		if ids[d.DiscoveryID] {
			return fmt.Errorf("duplicate discovery_id %q", d.DiscoveryID)
		}
		ids[d.DiscoveryID] = true

		if err := validateDiscovery(d); err != nil {
			return err
		}
	}

	for i := range ruleSet.Discoveries {
		d := &ruleSet.Discoveries[i]
		if d.ForEach != "" && !ids[d.ForEach] {
			return fmt.Errorf("discovery %q references unknown for_each %q", d.DiscoveryID, d.ForEach)
		}
	}

	order, err := topologicalOrder(ruleSet.Discoveries)
	if err != nil {
		return err
	}
	ruleSet.SetExecutionOrder(order)

	checkIDs := make(map[string]bool, len(ruleSet.Checks))
	for i := range ruleSet.Checks {
		c := &ruleSet.Checks[i]
		if c.CheckID == "" {
			return fmt.Errorf("check #%d missing check_id", i+1)
		}
		if checkIDs[c.CheckID] {
			return fmt.Errorf("duplicate check_id %q", c.CheckID)
		}
		checkIDs[c.CheckID] = true

		if c.Severity == "" {
			return fmt.Errorf("check %q missing severity", c.CheckID)
		}
		if c.ForEach == "" {
			return fmt.Errorf("check %q missing for_each", c.CheckID)
		}
		if !ids[c.ForEach] {
			return fmt.Errorf("check %q references unknown discovery %q", c.CheckID, c.ForEach)
		}
		switch c.Logic {
		case "":
			c.Logic = models.LogicAnd
		case models.LogicAnd, models.LogicOr:
		default:
			return fmt.Errorf("check %q has unknown logic %q (want AND or OR)", c.CheckID, c.Logic)
		}
		if len(c.Conditions) == 0 {
			return fmt.Errorf("check %q has no conditions", c.CheckID)
		}
		for j, node := range c.Conditions {
			if err := validateCondition(node, c.CheckID, j); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateDiscovery(d *models.DiscoveryDef) error {
	if len(d.Calls) == 0 {
		return fmt.Errorf("discovery %q has no calls", d.DiscoveryID)
	}
	for i := range d.Calls {
		call := &d.Calls[i]
		if call.Action == "" {
			return fmt.Errorf("discovery %q call #%d missing action", d.DiscoveryID, i+1)
		}
		switch call.OnError {
		case "":
			call.OnError = models.OnErrorFail
		case models.OnErrorFail, models.OnErrorContinue:
		default:
			return fmt.Errorf("discovery %q call %q has unknown on_error %q (want fail or continue)",
				d.DiscoveryID, call.Action, call.OnError)
		}
	}

	switch d.Emit.Mode {
	case "":
		d.Emit.Mode = models.EmitFlat
	case models.EmitFlat:
	case models.EmitNested:
		if d.ForEach == "" {
			return fmt.Errorf("discovery %q uses emit mode nested without for_each", d.DiscoveryID)
		}
		if d.Emit.NestAs == "" {
			return fmt.Errorf("discovery %q uses emit mode nested without nest_as", d.DiscoveryID)
		}
	default:
		return fmt.Errorf("discovery %q has unknown emit mode %q (want flat or nested)", d.DiscoveryID, d.Emit.Mode)
	}

	if d.Emit.ItemsFor == "" && len(d.Emit.Item) == 0 {
		return fmt.Errorf("discovery %q emit needs items_for or an item template", d.DiscoveryID)
	}
	return nil
}

func validateCondition(node models.ConditionNode, checkID string, index int) error {
	forms := 0
	if node.Path != "" || node.Operator != "" {
		forms++
	}
	if len(node.All) > 0 {
		forms++
	}
	if len(node.Any) > 0 {
		forms++
	}
	if forms != 1 {
		return fmt.Errorf("check %q condition #%d must be exactly one of a leaf, all, or any", checkID, index+1)
	}

	switch {
	case len(node.All) > 0:
		for i, sub := range node.All {
			if err := validateCondition(sub, checkID, i); err != nil {
				return fmt.Errorf("in all condition: %w", err)
			}
		}
	case len(node.Any) > 0:
		for i, sub := range node.Any {
			if err := validateCondition(sub, checkID, i); err != nil {
				return fmt.Errorf("in any condition: %w", err)
			}
		}
	default:
		if node.Path == "" {
			return fmt.Errorf("check %q condition #%d missing path", checkID, index+1)
		}
		if !node.Operator.Valid() {
			return fmt.Errorf("check %q condition #%d unknown operator %q", checkID, index+1, node.Operator)
		}
		if node.Operator == models.OpRegex || node.Operator == models.OpNotRegex {
			pattern, ok := node.Expected.(string)
			if !ok {
				return fmt.Errorf("check %q condition #%d regex expected must be a string", checkID, index+1)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("check %q condition #%d invalid regex: %v", checkID, index+1, err)
			}
		}
	}
	return nil
}

// topologicalOrder sorts discoveries by their for_each edges (Kahn's
// algorithm). A cycle is a load-time error naming its members.
func topologicalOrder(discoveries []models.DiscoveryDef) ([]string, error) {
	indegree := make(map[string]int, len(discoveries))
	children := make(map[string][]string)
	for _, d := range discoveries {
		if _, ok := indegree[d.DiscoveryID]; !ok {
			indegree[d.DiscoveryID] = 0
		}
		if d.ForEach != "" {
			indegree[d.DiscoveryID]++
			children[d.ForEach] = append(children[d.ForEach], d.DiscoveryID)
		}
	}

	var ready []string
	for _, d := range discoveries {
		if indegree[d.DiscoveryID] == 0 {
			ready = append(ready, d.DiscoveryID)
		}
	}

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(discoveries) {
		var cycle []string
		for id, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		return nil, fmt.Errorf("discovery graph has a cycle involving %v", cycle)
	}
	return order, nil
}
