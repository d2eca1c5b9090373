package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"complyscan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thingsRuleSet is the canonical two-discovery scenario: an independent
// listing, a dependent detail lookup, and a check over the details.
func thingsRuleSet() *models.RuleSet {
	rs := &models.RuleSet{
		Provider: "fake",
		Service:  "thing",
		Scope:    models.GlobalScope,
		Discoveries: []models.DiscoveryDef{
			{
				DiscoveryID: "fake.thing.list_things",
				Calls: []models.Call{
					{Action: "ListThings", SaveAs: "things", ResponsePath: "Things", OnError: models.OnErrorFail},
				},
				Emit: models.EmitSpec{
					ItemsFor: "things",
					Item:     map[string]any{"id": "{{ item.Id }}"},
					Mode:     models.EmitFlat,
				},
			},
			{
				DiscoveryID: "fake.thing.get_thing_detail",
				ForEach:     "fake.thing.list_things",
				Calls: []models.Call{
					{Action: "GetThingDetail", Params: map[string]any{"ThingId": "{{ item.id }}"}, SaveAs: "detail", OnError: models.OnErrorFail},
				},
				Emit: models.EmitSpec{
					Item: map[string]any{"id": "{{ parent.id }}", "enabled": "{{ detail.Enabled }}"},
					Mode: models.EmitFlat,
				},
			},
		},
		Checks: []models.CheckDef{
			{
				CheckID:  "thing.enabled",
				Title:    "Things are enabled",
				Severity: models.High,
				ForEach:  "fake.thing.get_thing_detail",
				Logic:    models.LogicAnd,
				Conditions: []models.ConditionNode{
					{Path: "enabled", Operator: models.OpEquals, Expected: true},
				},
			},
		},
	}
	rs.SetExecutionOrder([]string{"fake.thing.list_things", "fake.thing.get_thing_detail"})
	return rs
}

func thingsClient() *fakeClient {
	enabled := map[string]bool{"1": true, "2": false}
	client := &fakeClient{}
	client.invoke = func(action string, params map[string]any) (any, error) {
		switch action {
		case "ListThings":
			return map[string]any{"Things": []any{
				map[string]any{"Id": "1"},
				map[string]any{"Id": "2"},
			}}, nil
		case "GetThingDetail":
			id, _ := params["ThingId"].(string)
			return map[string]any{"Enabled": enabled[id]}, nil
		}
		return nil, fmt.Errorf("unknown action %s", action)
	}
	return client
}

func runThings(t *testing.T, client *fakeClient) (Inventory, []models.ResultRecord) {
	t.Helper()
	rs := thingsRuleSet()
	scope := models.ScopeContext{AccountID: "123456789012", Service: "thing"}

	discovery := &DiscoveryRunner{Dispatcher: &Dispatcher{Client: client}, RuleSet: rs}
	inventory, faults := discovery.Run(context.Background(), scope)
	require.Empty(t, faults)

	checks := &CheckRunner{RuleSet: rs}
	return inventory, checks.Run(scope, inventory)
}

func TestEndToEndPassAndFail(t *testing.T) {
	inventory, records := runThings(t, thingsClient())

	assert.Len(t, inventory["fake.thing.list_things"], 2)
	require.Len(t, records, 2)

	byResource := map[string]models.Status{}
	for _, record := range records {
		assert.Equal(t, "thing.enabled", record.CheckID)
		byResource[record.ResourceID] = record.Result
	}
	assert.Equal(t, models.StatusPass, byResource["1"])
	assert.Equal(t, models.StatusFail, byResource["2"])
}

func TestRecordCountMatchesInventory(t *testing.T) {
	inventory, records := runThings(t, thingsClient())
	assert.Equal(t, len(inventory["fake.thing.get_thing_detail"]), len(records))
}

func TestEmptyParentYieldsNoChildrenAndNoRecords(t *testing.T) {
	client := &fakeClient{}
	client.invoke = func(action string, params map[string]any) (any, error) {
		if action == "ListThings" {
			return map[string]any{"Things": []any{}}, nil
		}
		t.Fatalf("dependent discovery must not run for empty parent, got %s", action)
		return nil, nil
	}

	inventory, records := runThings(t, client)
	assert.Empty(t, inventory["fake.thing.get_thing_detail"])
	assert.Empty(t, records)
}

func TestCheckWithAbsentInventoryEmitsNothing(t *testing.T) {
	rs := thingsRuleSet()
	checks := &CheckRunner{RuleSet: rs}
	records := checks.Run(models.ScopeContext{AccountID: "a"}, Inventory{})
	assert.Empty(t, records)
}

func TestOnErrorContinueSkipsItem(t *testing.T) {
	client := thingsClient()
	base := client.invoke
	client.invoke = func(action string, params map[string]any) (any, error) {
		if action == "GetThingDetail" && params["ThingId"] == "1" {
			return nil, errors.New("boom")
		}
		return base(action, params)
	}

	rs := thingsRuleSet()
	rs.Discoveries[1].Calls[0].OnError = models.OnErrorContinue
	scope := models.ScopeContext{AccountID: "a", Service: "thing"}

	discovery := &DiscoveryRunner{Dispatcher: &Dispatcher{Client: client}, RuleSet: rs}
	inventory, faults := discovery.Run(context.Background(), scope)

	assert.Empty(t, faults)
	require.Len(t, inventory["fake.thing.get_thing_detail"], 1)
	assert.Equal(t, "2", inventory["fake.thing.get_thing_detail"][0]["id"])
}

func TestOnErrorFailFaultsDiscovery(t *testing.T) {
	client := thingsClient()
	base := client.invoke
	client.invoke = func(action string, params map[string]any) (any, error) {
		if action == "GetThingDetail" {
			return nil, errors.New("boom")
		}
		return base(action, params)
	}

	rs := thingsRuleSet()
	scope := models.ScopeContext{AccountID: "a", Service: "thing"}

	discovery := &DiscoveryRunner{Dispatcher: &Dispatcher{Client: client}, RuleSet: rs}
	inventory, faults := discovery.Run(context.Background(), scope)

	require.Len(t, faults, 1)
	assert.Equal(t, "fake.thing.get_thing_detail", faults[0].DiscoveryID)
	assert.Equal(t, "GetThingDetail", faults[0].Action)
	// The parent discovery still completed.
	assert.Len(t, inventory["fake.thing.list_things"], 2)
}

func TestNotFoundResourceEmitsNothing(t *testing.T) {
	rs := &models.RuleSet{
		Provider: "fake",
		Service:  "thing",
		Scope:    models.GlobalScope,
		Discoveries: []models.DiscoveryDef{
			{
				DiscoveryID: "fake.thing.settings",
				Calls: []models.Call{
					{Action: "GetSettings", SaveAs: "settings", ResponsePath: "Settings", OnError: models.OnErrorContinue},
				},
				Emit: models.EmitSpec{
					Item: map[string]any{
						"id":         "account-settings",
						"min_length": "{{ settings.MinimumLength }}",
					},
					Mode: models.EmitFlat,
				},
			},
		},
		Checks: []models.CheckDef{
			{
				CheckID:  "thing.settings_min_length",
				Severity: models.Medium,
				ForEach:  "fake.thing.settings",
				Conditions: []models.ConditionNode{
					{Path: "min_length", Operator: models.OpGte, Expected: 14},
				},
			},
		},
	}
	rs.SetExecutionOrder([]string{"fake.thing.settings"})

	client := &fakeClient{invoke: func(action string, params map[string]any) (any, error) {
		return nil, errNoSuch
	}}
	scope := models.ScopeContext{AccountID: "a", Service: "thing"}

	discovery := &DiscoveryRunner{Dispatcher: &Dispatcher{Client: client}, RuleSet: rs}
	inventory, faults := discovery.Run(context.Background(), scope)
	assert.Empty(t, faults)
	assert.Empty(t, inventory["fake.thing.settings"])

	checks := &CheckRunner{RuleSet: rs}
	assert.Empty(t, checks.Run(scope, inventory))
}

func TestAbsentResponsePathEmitsNothing(t *testing.T) {
	rs := thingsRuleSet()
	client := &fakeClient{invoke: func(action string, params map[string]any) (any, error) {
		if action == "ListThings" {
			// Response without the expected Things field.
			return map[string]any{"RequestId": "xyz"}, nil
		}
		t.Fatalf("dependent discovery must not run, got %s", action)
		return nil, nil
	}}

	discovery := &DiscoveryRunner{Dispatcher: &Dispatcher{Client: client}, RuleSet: rs}
	inventory, faults := discovery.Run(context.Background(), models.ScopeContext{AccountID: "a", Service: "thing"})
	assert.Empty(t, faults)
	assert.Empty(t, inventory["fake.thing.list_things"])
}

func TestNestedEmitAttachesChildren(t *testing.T) {
	rs := thingsRuleSet()
	rs.Discoveries[1].Emit.Mode = models.EmitNested
	rs.Discoveries[1].Emit.NestAs = "detail"
	scope := models.ScopeContext{AccountID: "a", Service: "thing"}

	discovery := &DiscoveryRunner{Dispatcher: &Dispatcher{Client: thingsClient()}, RuleSet: rs}
	inventory, faults := discovery.Run(context.Background(), scope)
	require.Empty(t, faults)

	parents := inventory["fake.thing.list_things"]
	require.Len(t, parents, 2)
	for _, parent := range parents {
		children, ok := parent["detail"].([]map[string]any)
		require.True(t, ok)
		require.Len(t, children, 1)
		assert.Equal(t, parent["id"], children[0]["id"])
	}
}

func TestCheckEvaluationErrorIsPerResource(t *testing.T) {
	rs := thingsRuleSet()
	rs.Checks[0].Conditions = []models.ConditionNode{
		{Path: "created", Operator: models.OpAgeDays, Expected: 90},
	}
	scope := models.ScopeContext{AccountID: "a", Service: "thing"}
	inventory := Inventory{
		"fake.thing.get_thing_detail": {
			{"id": "ok", "created": "2099-01-01T00:00:00Z"},
			{"id": "broken", "created": "not-a-date"},
		},
	}

	checks := &CheckRunner{RuleSet: rs}
	records := checks.Run(scope, inventory)
	require.Len(t, records, 2)

	byResource := map[string]models.Status{}
	for _, record := range records {
		byResource[record.ResourceID] = record.Result
	}
	assert.Equal(t, models.StatusPass, byResource["ok"])
	assert.Equal(t, models.StatusError, byResource["broken"])
}

func TestOrLogicAndConditionTrees(t *testing.T) {
	rs := thingsRuleSet()
	rs.Checks[0].Logic = models.LogicOr
	rs.Checks[0].Conditions = []models.ConditionNode{
		{Path: "enabled", Operator: models.OpEquals, Expected: true},
		{All: []models.ConditionNode{
			{Path: "id", Operator: models.OpEquals, Expected: "2"},
			{Path: "enabled", Operator: models.OpEquals, Expected: false},
		}},
	}

	scope := models.ScopeContext{AccountID: "a", Service: "thing"}
	inventory := Inventory{
		"fake.thing.get_thing_detail": {
			{"id": "1", "enabled": true},
			{"id": "2", "enabled": false},
			{"id": "3", "enabled": false},
		},
	}
	checks := &CheckRunner{RuleSet: rs}
	out := checks.Run(scope, inventory)
	require.Len(t, out, 3)

	byResource := map[string]models.Status{}
	for _, record := range out {
		byResource[record.ResourceID] = record.Result
	}
	assert.Equal(t, models.StatusPass, byResource["1"])
	assert.Equal(t, models.StatusPass, byResource["2"])
	assert.Equal(t, models.StatusFail, byResource["3"])
}
