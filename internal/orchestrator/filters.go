package orchestrator

import (
	"path"

	"complyscan/internal/models"
)

// keep applies include/exclude lists to one value. An empty include list
// admits everything; exclude wins over include. Patterns are shell-style
// ("prod-*") or exact.
func keep(value string, include, exclude []string) bool {
	if matchAny(exclude, value) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchAny(include, value)
}

func matchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if pattern == value {
			return true
		}
		if ok, err := path.Match(pattern, value); err == nil && ok {
			return true
		}
	}
	return false
}

func filterStrings(values, include, exclude []string) []string {
	var out []string
	for _, v := range values {
		if keep(v, include, exclude) {
			out = append(out, v)
		}
	}
	return out
}

// filterAccounts matches either the account id or its name.
func filterAccounts(accounts []models.Account, include, exclude []string) []models.Account {
	var out []models.Account
	for _, account := range accounts {
		if matchAny(exclude, account.ID) || matchAny(exclude, account.Name) {
			continue
		}
		if len(include) > 0 && !matchAny(include, account.ID) && !matchAny(include, account.Name) {
			continue
		}
		out = append(out, account)
	}
	return out
}

// filterChecks applies the check-id include/exclude lists. ERROR records
// carry discovery ids or "scope" rather than check ids, so an include list
// never drops them; only an explicit exclude can.
func filterChecks(records []models.ResultRecord, include, exclude []string) []models.ResultRecord {
	if len(include) == 0 && len(exclude) == 0 {
		return records
	}
	var out []models.ResultRecord
	for _, record := range records {
		if record.Result == models.StatusError {
			if !matchAny(exclude, record.CheckID) {
				out = append(out, record)
			}
			continue
		}
		if keep(record.CheckID, include, exclude) {
			out = append(out, record)
		}
	}
	return out
}
