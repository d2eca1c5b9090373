package models

type Severity string
type ScopeKind string
type Operator string
type Logic string
type OnError string
type EmitMode string

const (
	Critical Severity = "CRITICAL"
	High     Severity = "HIGH"
	Medium   Severity = "MEDIUM"
	Low      Severity = "LOW"
	Info     Severity = "INFO"

	// Service scope kinds
	GlobalScope   ScopeKind = "global"
	RegionalScope ScopeKind = "regional"

	// Check logic
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"

	// Call error policy
	OnErrorFail     OnError = "fail"
	OnErrorContinue OnError = "continue"

	// Emit modes for dependent discoveries
	EmitFlat   EmitMode = "flat"
	EmitNested EmitMode = "nested"
)

const (
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpAgeDays     Operator = "age_days"
	OpNotExpired  Operator = "not_expired"
	OpRegex       Operator = "regex"
	OpNotRegex    Operator = "not_regex"
)

var knownOperators = map[Operator]bool{
	OpExists: true, OpNotExists: true,
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpNotContains: true,
	OpIn: true, OpNotIn: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpAgeDays: true, OpNotExpired: true,
	OpRegex: true, OpNotRegex: true,
}

// Valid reports whether the operator is part of the supported operator table.
func (o Operator) Valid() bool {
	return knownOperators[o]
}

// RuleSet is one rule document for a (provider, service) pair. It is
// immutable once loaded.
type RuleSet struct {
	Provider    string         `yaml:"provider"`
	Service     string         `yaml:"service"`
	Scope       ScopeKind      `yaml:"scope"`
	Discoveries []DiscoveryDef `yaml:"discovery"`
	Checks      []CheckDef     `yaml:"checks"`

	// Topological execution order of discovery ids, computed at load time.
	order []string
}

// SetExecutionOrder records the topological discovery order. Called once by
// the loader after validating the discovery graph.
func (rs *RuleSet) SetExecutionOrder(ids []string) {
	rs.order = ids
}

// ExecutionOrder returns discovery ids in dependency order.
func (rs *RuleSet) ExecutionOrder() []string {
	return rs.order
}

// Discovery returns the discovery definition with the given id, or nil.
func (rs *RuleSet) Discovery(id string) *DiscoveryDef {
	for i := range rs.Discoveries {
		if rs.Discoveries[i].DiscoveryID == id {
			return &rs.Discoveries[i]
		}
	}
	return nil
}

// DiscoveryDef is a single inventory step. ForEach, when set, makes it a
// dependent discovery iterating its parent's inventory.
type DiscoveryDef struct {
	DiscoveryID string    `yaml:"discovery_id"`
	ForEach     string    `yaml:"for_each,omitempty"`
	Calls       []Call    `yaml:"calls"`
	Emit        EmitSpec  `yaml:"emit"`
}

// Call is one provider action invocation within a discovery.
type Call struct {
	Action       string         `yaml:"action"`
	Params       map[string]any `yaml:"params,omitempty"`
	SaveAs       string         `yaml:"save_as,omitempty"`
	ResponsePath string         `yaml:"response_path,omitempty"`
	OnError      OnError        `yaml:"on_error,omitempty"`
}

// EmitSpec describes how call responses become inventory items. With
// ItemsFor set, every element of the named saved value produces one item via
// the Item template; otherwise Emit yields a single item. Mode nested
// additionally attaches child items to the parent item under NestAs.
type EmitSpec struct {
	ItemsFor string         `yaml:"items_for,omitempty"`
	Item     map[string]any `yaml:"item,omitempty"`
	Mode     EmitMode       `yaml:"mode,omitempty"`
	NestAs   string         `yaml:"nest_as,omitempty"`
}

// CheckDef evaluates a condition tree against every item of one discovery's
// inventory.
type CheckDef struct {
	CheckID      string          `yaml:"check_id"`
	Title        string          `yaml:"title"`
	Severity     Severity        `yaml:"severity"`
	ForEach      string          `yaml:"for_each"`
	Logic        Logic           `yaml:"logic,omitempty"`
	Conditions   []ConditionNode `yaml:"conditions"`
	ResourceID   string          `yaml:"resource_id,omitempty"`
	ResourceName string          `yaml:"resource_name,omitempty"`
}

// ConditionNode is a tagged union: either a leaf (Path + Operator) or a
// boolean combination (All / Any). The loader rejects nodes that are not
// exactly one of the three forms.
type ConditionNode struct {
	Path     string          `yaml:"path,omitempty"`
	Operator Operator        `yaml:"operator,omitempty"`
	Expected any             `yaml:"expected,omitempty"`
	All      []ConditionNode `yaml:"all,omitempty"`
	Any      []ConditionNode `yaml:"any,omitempty"`
}

// IsLeaf reports whether the node is a single path/operator condition.
func (c *ConditionNode) IsLeaf() bool {
	return len(c.All) == 0 && len(c.Any) == 0
}
