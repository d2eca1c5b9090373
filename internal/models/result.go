package models

import "time"

type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
	StatusSkip  Status = "SKIP"
)

// ResultRecord is the atomic unit of scan output: one check, one resource,
// one scope, one verdict.
type ResultRecord struct {
	CheckID      string         `json:"check_id"`
	Title        string         `json:"title,omitempty"`
	Severity     Severity       `json:"severity,omitempty"`
	ResourceID   string         `json:"resource_id"`
	ResourceName string         `json:"resource_name,omitempty"`
	Scope        ScopeContext   `json:"scope"`
	Result       Status         `json:"result"`
	Evidence     map[string]any `json:"evidence,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// WithEvidence returns a copy of the record with one evidence entry added.
// The evidence map is cloned so records sharing a map are never aliased.
func (r ResultRecord) WithEvidence(key string, value any) ResultRecord {
	evidence := make(map[string]any, len(r.Evidence)+1)
	for k, v := range r.Evidence {
		evidence[k] = v
	}
	evidence[key] = value
	r.Evidence = evidence
	return r
}
