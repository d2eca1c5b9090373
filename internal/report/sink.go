package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"complyscan/internal/engine"
	"complyscan/internal/models"
)

// DirSink writes one JSON file per (scope, kind) under a directory.
// Concurrent leaves never target the same file, so writes need no
// coordination beyond the summary counters.
type DirSink struct {
	dir string

	mu      sync.Mutex
	summary Summary
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create output directory %q: %w", dir, err)
	}
	return &DirSink{dir: dir, summary: newSummary()}, nil
}

type inventoryDocument struct {
	Scope     models.ScopeContext         `json:"scope"`
	Timestamp time.Time                   `json:"timestamp"`
	Inventory map[string][]map[string]any `json:"inventory"`
}

type checksDocument struct {
	Scope     models.ScopeContext   `json:"scope"`
	Timestamp time.Time             `json:"timestamp"`
	Records   []models.ResultRecord `json:"records"`
}

func (s *DirSink) WriteInventory(scope models.ScopeContext, inventory engine.Inventory) error {
	doc := inventoryDocument{
		Scope:     scope,
		Timestamp: time.Now().UTC(),
		Inventory: inventory,
	}
	return s.writeJSON(scopeFileName(scope, "inventory"), doc)
}

func (s *DirSink) WriteChecks(scope models.ScopeContext, records []models.ResultRecord) error {
	s.mu.Lock()
	s.summary.add(records)
	s.mu.Unlock()

	doc := checksDocument{
		Scope:     scope,
		Timestamp: time.Now().UTC(),
		Records:   records,
	}
	return s.writeJSON(scopeFileName(scope, "checks"), doc)
}

func (s *DirSink) writeJSON(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, name), data, 0644)
}

// Summary returns a snapshot of the counters accumulated so far.
func (s *DirSink) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.clone()
}

func scopeFileName(scope models.ScopeContext, kind string) string {
	region := scope.Region
	if region == "" {
		region = "global"
	}
	name := strings.Join([]string{scope.AccountID, scope.Service, region, kind}, "_")
	return name + ".json"
}

// Summary aggregates record counts across every scope of a scan.
type Summary struct {
	TotalRecords int                     `json:"total_records"`
	Scopes       int                     `json:"scopes"`
	ByStatus     map[models.Status]int   `json:"by_status"`
	BySeverity   map[models.Severity]int `json:"failures_by_severity"`
	ByCheck      map[string]int          `json:"failures_by_check"`
}

func newSummary() Summary {
	return Summary{
		ByStatus:   make(map[models.Status]int),
		BySeverity: make(map[models.Severity]int),
		ByCheck:    make(map[string]int),
	}
}

func (s *Summary) add(records []models.ResultRecord) {
	s.Scopes++
	for _, record := range records {
		s.TotalRecords++
		s.ByStatus[record.Result]++
		if record.Result == models.StatusFail {
			s.BySeverity[record.Severity]++
			s.ByCheck[record.CheckID]++
		}
	}
}

func (s Summary) clone() Summary {
	out := newSummary()
	out.TotalRecords = s.TotalRecords
	out.Scopes = s.Scopes
	for k, v := range s.ByStatus {
		out.ByStatus[k] = v
	}
	for k, v := range s.BySeverity {
		out.BySeverity[k] = v
	}
	for k, v := range s.ByCheck {
		out.ByCheck[k] = v
	}
	return out
}
