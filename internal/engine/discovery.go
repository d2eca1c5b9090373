package engine

import (
	"context"
	"errors"
	"fmt"

	"complyscan/internal/models"
)

// Inventory holds discovered items keyed by discovery id for one scope pass.
type Inventory map[string][]map[string]any

// DiscoveryFault records a discovery that could not complete. Faults are
// collected, not thrown: the remaining discovery graph keeps running and the
// orchestrator turns faults into ERROR records.
type DiscoveryFault struct {
	DiscoveryID string
	Action      string
	Err         error
}

// DiscoveryRunner executes a rule set's discoveries in topological order
// against one scope, building the in-memory inventory.
type DiscoveryRunner struct {
	Dispatcher *Dispatcher
	RuleSet    *models.RuleSet
}

// Run walks the discovery graph. Dependent discoveries whose parent faulted
// are skipped (and recorded); a parent with zero items simply yields zero
// children.
func (r *DiscoveryRunner) Run(ctx context.Context, scope models.ScopeContext) (Inventory, []DiscoveryFault) {
	inventory := make(Inventory)
	failed := make(map[string]bool)
	var faults []DiscoveryFault

	for _, id := range r.RuleSet.ExecutionOrder() {
		if ctx.Err() != nil {
			faults = append(faults, DiscoveryFault{DiscoveryID: id, Err: ctx.Err()})
			failed[id] = true
			continue
		}
		def := r.RuleSet.Discovery(id)
		if def == nil {
			// Loader guarantees this cannot happen; guard anyway.
			faults = append(faults, DiscoveryFault{DiscoveryID: id, Err: fmt.Errorf("discovery %q not defined", id)})
			failed[id] = true
			continue
		}
		if def.ForEach != "" && failed[def.ForEach] {
			logDiagnostic("discovery %s skipped: parent %s faulted", id, def.ForEach)
			failed[id] = true
			continue
		}

		var fault *DiscoveryFault
		if def.ForEach == "" {
			fault = r.runRoot(ctx, def, scope, inventory)
		} else {
			fault = r.runDependent(ctx, def, scope, inventory)
		}
		if fault != nil {
			faults = append(faults, *fault)
			failed[id] = true
		}
	}
	return inventory, faults
}

func (r *DiscoveryRunner) runRoot(ctx context.Context, def *models.DiscoveryDef, scope models.ScopeContext, inventory Inventory) *DiscoveryFault {
	vars := scope.Vars()
	items, action, err := r.runPass(ctx, def, vars)
	if err != nil {
		if errors.Is(err, errItemSkipped) {
			logDiagnostic("discovery %s produced no items: call marked on_error=continue failed", def.DiscoveryID)
			inventory[def.DiscoveryID] = nil
			return nil
		}
		return &DiscoveryFault{DiscoveryID: def.DiscoveryID, Action: action, Err: err}
	}
	inventory[def.DiscoveryID] = items
	logDiagnostic("discovery %s emitted %d items", def.DiscoveryID, len(items))
	return nil
}

func (r *DiscoveryRunner) runDependent(ctx context.Context, def *models.DiscoveryDef, scope models.ScopeContext, inventory Inventory) *DiscoveryFault {
	parents := inventory[def.ForEach]
	var all []map[string]any

	for _, parent := range parents {
		vars := scope.Vars()
		vars["item"] = parent
		vars["parent"] = parent

		items, action, err := r.runPass(ctx, def, vars)
		if err != nil {
			if errors.Is(err, errItemSkipped) {
				logDiagnostic("discovery %s: item skipped after call failure", def.DiscoveryID)
				continue
			}
			return &DiscoveryFault{DiscoveryID: def.DiscoveryID, Action: action, Err: err}
		}
		if def.Emit.Mode == models.EmitNested {
			parent[def.Emit.NestAs] = items
		}
		all = append(all, items...)
	}

	inventory[def.DiscoveryID] = all
	logDiagnostic("discovery %s emitted %d items from %d parents", def.DiscoveryID, len(all), len(parents))
	return nil
}

// errItemSkipped signals an on_error=continue call failure: the current item
// is dropped instead of faulting the discovery.
var errItemSkipped = errors.New("item skipped")

// runPass executes the definition's calls once against the given variable
// scope and emits items. The returned action names the failing call for
// error records.
func (r *DiscoveryRunner) runPass(ctx context.Context, def *models.DiscoveryDef, vars map[string]any) ([]map[string]any, string, error) {
	var response any
	for _, call := range def.Calls {
		var err error
		response, err = r.Dispatcher.Dispatch(ctx, call, vars)
		if err != nil {
			if call.OnError == models.OnErrorContinue {
				logDiagnostic("discovery %s action %s failed, continuing: %v", def.DiscoveryID, call.Action, err)
				return nil, call.Action, errItemSkipped
			}
			return nil, call.Action, err
		}
		vars["response"] = response
		if call.SaveAs != "" {
			vars[call.SaveAs] = response
		}
	}

	// A nil final response means the resource does not exist (not-found or
	// an absent response_path). That is an empty result, not an error, so
	// the item template must not render against it.
	if response == nil {
		logDiagnostic("discovery %s: empty response, emitting no items", def.DiscoveryID)
		return nil, "", nil
	}

	items, err := emitItems(def.Emit, vars)
	if err != nil {
		return nil, "", fmt.Errorf("discovery %s emit: %w", def.DiscoveryID, err)
	}
	return items, "", nil
}

// emitItems turns call results into inventory items. With ItemsFor set, the
// named saved value is iterated and each element is bound as "item" while
// the per-item template renders; without it a single item is emitted from
// the current scope. An empty Item template passes list elements through
// untouched.
func emitItems(emit models.EmitSpec, vars map[string]any) ([]map[string]any, error) {
	if emit.ItemsFor == "" {
		item, err := ResolveParams(emit.Item, vars)
		if err != nil {
			return nil, err
		}
		return []map[string]any{item}, nil
	}

	raw, ok := LookupPath(vars, emit.ItemsFor)
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("items_for %q is %T, want a list", emit.ItemsFor, raw)
	}

	items := make([]map[string]any, 0, len(list))
	for _, element := range list {
		if len(emit.Item) == 0 {
			m, ok := element.(map[string]any)
			if !ok {
				m = map[string]any{"value": element}
			}
			items = append(items, m)
			continue
		}

		itemVars := make(map[string]any, len(vars)+1)
		for k, v := range vars {
			itemVars[k] = v
		}
		itemVars["item"] = element

		item, err := ResolveParams(emit.Item, itemVars)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
