package models

// Account is one member of the scanned organization hierarchy.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ScopeContext is the (account, region, service) coordinate one
// discovery+check pass executes within. Region is empty for global services.
type ScopeContext struct {
	OrganizationID string `json:"organization_id,omitempty"`
	AccountID      string `json:"account_id"`
	Region         string `json:"region,omitempty"`
	Service        string `json:"service"`
}

// Key returns a stable identifier usable as a cache or file name component.
func (s ScopeContext) Key() string {
	region := s.Region
	if region == "" {
		region = "global"
	}
	return s.AccountID + "/" + s.Service + "/" + region
}

// Vars returns the scope as the root template variable namespace.
func (s ScopeContext) Vars() map[string]any {
	vars := map[string]any{
		"account_id": s.AccountID,
		"region":     s.Region,
		"service":    s.Service,
	}
	if s.OrganizationID != "" {
		vars["organization_id"] = s.OrganizationID
	}
	return vars
}
