package models

import (
	"path"
	"time"
)

type ExceptionEffect string

const (
	EffectMarkSkipped ExceptionEffect = "mark_skipped"
	EffectSkipCheck   ExceptionEffect = "skip_check"
	EffectExempt      ExceptionEffect = "exempt_results"
)

var knownEffects = map[ExceptionEffect]bool{
	EffectMarkSkipped: true,
	EffectSkipCheck:   true,
	EffectExempt:      true,
}

// Valid reports whether the effect is one of the supported kinds.
func (e ExceptionEffect) Valid() bool {
	return knownEffects[e]
}

// ExceptionRule suppresses or reclassifies specific check results. Expired
// rules are inert, not deleted.
type ExceptionRule struct {
	ID        string            `yaml:"id"`
	RuleID    string            `yaml:"rule_id"`
	Selector  ExceptionSelector `yaml:"selector"`
	Effect    ExceptionEffect   `yaml:"effect"`
	Reason    string            `yaml:"reason,omitempty"`
	ExpiresAt *time.Time        `yaml:"expires_at,omitempty"`
}

// Expired reports whether the rule is past its expiry at the given time.
// Rules without an expiry never expire.
func (e *ExceptionRule) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// ExceptionSelector narrows an exception to specific scopes and resources.
// Empty fields match everything; non-empty fields match exactly or by
// shell-style pattern ("prod-*").
type ExceptionSelector struct {
	AccountID  string `yaml:"account_id,omitempty"`
	Region     string `yaml:"region,omitempty"`
	Service    string `yaml:"service,omitempty"`
	ResourceID string `yaml:"resource_id,omitempty"`
}

// Matches reports whether the selector applies to the given record.
func (s ExceptionSelector) Matches(rec ResultRecord) bool {
	return matchField(s.AccountID, rec.Scope.AccountID) &&
		matchField(s.Region, rec.Scope.Region) &&
		matchField(s.Service, rec.Scope.Service) &&
		matchField(s.ResourceID, rec.ResourceID)
}

func matchField(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if ok, err := path.Match(pattern, value); err == nil && ok {
		return true
	}
	return pattern == value
}
