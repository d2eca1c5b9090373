package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"complyscan/internal/engine"
	"complyscan/internal/exceptions"
	"complyscan/internal/models"
	"complyscan/internal/rules"
)

var (
	EnableDiagnostics = false
)

func logDiagnostic(format string, args ...interface{}) {
	if EnableDiagnostics {
		fmt.Fprintf(os.Stderr, "[DIAG-ORCHESTRATOR] "+format+"\n", args...)
	}
}

// ClientFactory constructs (and caches) authenticated provider clients.
type ClientFactory interface {
	GetClient(ctx context.Context, provider, service string, account models.Account, region string) (engine.Client, error)
}

// ScopeDiscoverer enumerates the hierarchy the scan fans out over.
type ScopeDiscoverer interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListRegions(ctx context.Context, account models.Account, service string) ([]string, error)
}

// ResultSink persists per-scope inventory and check records. It must
// tolerate concurrent writes from many leaves; scopes never share a write.
type ResultSink interface {
	WriteInventory(scope models.ScopeContext, inventory engine.Inventory) error
	WriteChecks(scope models.ScopeContext, records []models.ResultRecord) error
}

// Config is the orchestrator's tuning surface. Zero values take the
// defaults below.
type Config struct {
	AccountWorkers int
	ServiceWorkers int
	RegionWorkers  int
	LeafTimeout    time.Duration
	Retries        int
	PageLimit      int

	IncludeAccounts []string
	ExcludeAccounts []string
	IncludeRegions  []string
	ExcludeRegions  []string
	IncludeServices []string
	ExcludeServices []string
	IncludeChecks   []string
	ExcludeChecks   []string
}

const (
	defaultAccountWorkers = 4
	defaultServiceWorkers = 4
	defaultRegionWorkers  = 8
	defaultLeafTimeout    = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.AccountWorkers <= 0 {
		c.AccountWorkers = defaultAccountWorkers
	}
	if c.ServiceWorkers <= 0 {
		c.ServiceWorkers = defaultServiceWorkers
	}
	if c.RegionWorkers <= 0 {
		c.RegionWorkers = defaultRegionWorkers
	}
	if c.LeafTimeout <= 0 {
		c.LeafTimeout = defaultLeafTimeout
	}
	return c
}

// Orchestrator walks the account/service/region hierarchy and runs the
// discovery+check pipeline at every leaf with bounded concurrency per level.
type Orchestrator struct {
	Registry   *rules.Registry
	Scopes     ScopeDiscoverer
	Clients    ClientFactory
	Exceptions *exceptions.Filter
	Sink       ResultSink
	Config     Config
}

// Stats summarizes one orchestration run.
type Stats struct {
	Accounts    int
	Leaves      int
	ScopeErrors int
}

// Run fans the scan out. It returns an error only when the scan cannot
// start at all (account discovery failure); every narrower failure is
// contained as ERROR records for its own scope.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	cfg := o.Config.withDefaults()
	var stats Stats
	var statsMu sync.Mutex

	accounts, err := o.Scopes.ListAccounts(ctx)
	if err != nil {
		return stats, fmt.Errorf("account discovery failed: %w", err)
	}
	accounts = filterAccounts(accounts, cfg.IncludeAccounts, cfg.ExcludeAccounts)
	stats.Accounts = len(accounts)
	logDiagnostic("scanning %d accounts", len(accounts))

	accountTasks := make([]func(), 0, len(accounts))
	for _, account := range accounts {
		account := account
		accountTasks = append(accountTasks, func() {
			leaves, scopeErrors := o.runAccount(ctx, cfg, account)
			statsMu.Lock()
			stats.Leaves += leaves
			stats.ScopeErrors += scopeErrors
			statsMu.Unlock()
		})
	}
	runPool(ctx, cfg.AccountWorkers, accountTasks)

	return stats, ctx.Err()
}

func (o *Orchestrator) runAccount(ctx context.Context, cfg Config, account models.Account) (leaves, scopeErrors int) {
	var mu sync.Mutex

	var serviceTasks []func()
	for _, ruleSet := range o.Registry.All() {
		if !keep(ruleSet.Service, cfg.IncludeServices, cfg.ExcludeServices) {
			continue
		}
		ruleSet := ruleSet
		serviceTasks = append(serviceTasks, func() {
			l, e := o.runService(ctx, cfg, account, ruleSet)
			mu.Lock()
			leaves += l
			scopeErrors += e
			mu.Unlock()
		})
	}
	runPool(ctx, cfg.ServiceWorkers, serviceTasks)
	return leaves, scopeErrors
}

func (o *Orchestrator) runService(ctx context.Context, cfg Config, account models.Account, ruleSet *models.RuleSet) (leaves, scopeErrors int) {
	var regions []string
	if ruleSet.Scope == models.GlobalScope {
		// Global services skip the region axis.
		regions = []string{""}
	} else {
		discovered, err := o.Scopes.ListRegions(ctx, account, ruleSet.Service)
		if err != nil {
			scope := models.ScopeContext{AccountID: account.ID, Service: ruleSet.Service}
			o.writeScopeError(scope, "region discovery", err)
			return 0, 1
		}
		regions = filterStrings(discovered, cfg.IncludeRegions, cfg.ExcludeRegions)
	}

	var mu sync.Mutex
	regionTasks := make([]func(), 0, len(regions))
	for _, region := range regions {
		region := region
		regionTasks = append(regionTasks, func() {
			if o.runLeaf(ctx, cfg, account, ruleSet, region) {
				mu.Lock()
				leaves++
				mu.Unlock()
			} else {
				mu.Lock()
				leaves++
				scopeErrors++
				mu.Unlock()
			}
		})
	}
	runPool(ctx, cfg.RegionWorkers, regionTasks)
	return leaves, scopeErrors
}

// runLeaf executes one (account, region, service) discovery+check pass under
// its own deadline. Returns false when the whole scope errored.
func (o *Orchestrator) runLeaf(ctx context.Context, cfg Config, account models.Account, ruleSet *models.RuleSet, region string) bool {
	scope := models.ScopeContext{
		AccountID: account.ID,
		Region:    region,
		Service:   ruleSet.Service,
	}

	leafCtx, cancel := context.WithTimeout(ctx, cfg.LeafTimeout)
	defer cancel()

	client, err := o.Clients.GetClient(leafCtx, ruleSet.Provider, ruleSet.Service, account, region)
	if err != nil {
		o.writeScopeError(scope, "client construction", err)
		return false
	}

	dispatcher := &engine.Dispatcher{
		Client:    client,
		Retries:   cfg.Retries,
		PageLimit: cfg.PageLimit,
	}
	discovery := &engine.DiscoveryRunner{Dispatcher: dispatcher, RuleSet: ruleSet}
	inventory, faults := discovery.Run(leafCtx, scope)

	if err := o.Sink.WriteInventory(scope, inventory); err != nil {
		logDiagnostic("scope %s: inventory write failed: %v", scope.Key(), err)
	}

	checks := &engine.CheckRunner{RuleSet: ruleSet}
	records := checks.Run(scope, inventory)
	records = append(records, faultRecords(scope, faults)...)
	records = filterChecks(records, cfg.IncludeChecks, cfg.ExcludeChecks)
	if o.Exceptions != nil {
		records = o.Exceptions.Apply(records)
	}

	if err := o.Sink.WriteChecks(scope, records); err != nil {
		logDiagnostic("scope %s: checks write failed: %v", scope.Key(), err)
	}

	logDiagnostic("scope %s: %d records, %d discovery faults", scope.Key(), len(records), len(faults))
	return len(faults) == 0
}

// faultRecords converts discovery faults into ERROR records so the report
// never silently drops a failed discovery.
func faultRecords(scope models.ScopeContext, faults []engine.DiscoveryFault) []models.ResultRecord {
	records := make([]models.ResultRecord, 0, len(faults))
	now := time.Now().UTC()
	for _, fault := range faults {
		evidence := map[string]any{"error": fault.Err.Error()}
		if fault.Action != "" {
			evidence["action"] = fault.Action
		}
		records = append(records, models.ResultRecord{
			CheckID:    fault.DiscoveryID,
			ResourceID: scope.Key(),
			Scope:      scope,
			Result:     models.StatusError,
			Evidence:   evidence,
			Timestamp:  now,
		})
	}
	return records
}

func (o *Orchestrator) writeScopeError(scope models.ScopeContext, stage string, err error) {
	record := models.ResultRecord{
		CheckID:    "scope",
		ResourceID: scope.Key(),
		Scope:      scope,
		Result:     models.StatusError,
		Evidence:   map[string]any{"stage": stage, "error": err.Error()},
		Timestamp:  time.Now().UTC(),
	}
	if writeErr := o.Sink.WriteChecks(scope, []models.ResultRecord{record}); writeErr != nil {
		logDiagnostic("scope %s: error record write failed: %v", scope.Key(), writeErr)
	}
}

// runPool executes tasks with at most n running at once. Tasks not yet
// started when the context is cancelled are skipped, so shutdown finishes
// in-flight leaves without issuing new ones.
func runPool(ctx context.Context, n int, tasks []func()) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, n)

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(task func()) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			task()
		}(task)
	}
	wg.Wait()
}
