package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"complyscan/internal/models"
)

// Fault classifies provider-level errors so callers can decide what is
// survivable. Everything except FaultOther is contained without aborting
// sibling work.
type Fault int

const (
	FaultOther Fault = iota
	FaultAccessDenied
	FaultThrottled
	FaultNotFound
)

func (f Fault) String() string {
	switch f {
	case FaultAccessDenied:
		return "access_denied"
	case FaultThrottled:
		return "throttled"
	case FaultNotFound:
		return "not_found"
	}
	return "other"
}

// Client is the provider adapter the dispatcher drives. Invoke resolves an
// action name to an SDK call and returns the normalized response (maps,
// slices and scalars, the way encoding/json decodes them). Classify maps a
// provider error into the fault taxonomy.
type Client interface {
	Invoke(ctx context.Context, action string, params map[string]any) (any, error)
	Classify(err error) Fault
}

// DispatchError wraps a classified provider failure with the action that
// caused it.
type DispatchError struct {
	Action string
	Fault  Fault
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("action %s: %s: %v", e.Action, e.Fault, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

const (
	defaultRetries   = 3
	defaultPageLimit = 20
	baseBackoff      = 500 * time.Millisecond
)

// Dispatcher resolves call parameters, invokes provider actions, follows
// pagination and retries throttled calls with bounded backoff.
type Dispatcher struct {
	Client    Client
	Retries   int
	PageLimit int
	Backoff   time.Duration
}

// Dispatch runs one call against the client. Not-found responses come back
// as (nil, nil); access-denied and exhausted-throttle failures come back as
// a *DispatchError for the caller to contain.
func (d *Dispatcher) Dispatch(ctx context.Context, call models.Call, scope map[string]any) (any, error) {
	params, err := ResolveParams(call.Params, scope)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", call.Action, err)
	}

	response, err := d.invokeWithRetry(ctx, call.Action, params)
	if err != nil {
		fault := d.Client.Classify(err)
		if fault == FaultNotFound {
			logDiagnostic("action %s: resource not found, treating as empty result", call.Action)
			return nil, nil
		}
		return nil, &DispatchError{Action: call.Action, Fault: fault, Err: err}
	}

	if page, ok := response.(map[string]any); ok {
		response, err = d.followPages(ctx, call.Action, params, page)
		if err != nil {
			return nil, err
		}
	}

	if call.ResponsePath != "" {
		extracted, ok := LookupPath(response, call.ResponsePath)
		if !ok {
			logDiagnostic("action %s: response_path %q absent in response", call.Action, call.ResponsePath)
			return nil, nil
		}
		return extracted, nil
	}
	return response, nil
}

func (d *Dispatcher) invokeWithRetry(ctx context.Context, action string, params map[string]any) (any, error) {
	retries := d.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	base := d.Backoff
	if base <= 0 {
		base = baseBackoff
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := base << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(base)))
			logDiagnostic("action %s throttled, retry %d/%d after %s", action, attempt, retries, backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		response, err := d.Client.Invoke(ctx, action, params)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if d.Client.Classify(err) != FaultThrottled {
			return nil, err
		}
	}
	return nil, lastErr
}

// Pagination token fields, checked in order. The response field names the
// token in the current page; the request field carries it into the next one.
var pageTokens = []struct {
	responseField string
	requestField  string
}{
	{"NextToken", "NextToken"},
	{"NextMarker", "Marker"},
	{"Marker", "Marker"},
	{"ContinuationToken", "ContinuationToken"},
}

func (d *Dispatcher) followPages(ctx context.Context, action string, params map[string]any, first map[string]any) (map[string]any, error) {
	limit := d.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	merged := first
	current := first
	for page := 1; page < limit; page++ {
		requestField, token, ok := nextPageToken(current)
		if !ok {
			return merged, nil
		}

		nextParams := make(map[string]any, len(params)+1)
		for k, v := range params {
			nextParams[k] = v
		}
		nextParams[requestField] = token

		response, err := d.invokeWithRetry(ctx, action, nextParams)
		if err != nil {
			fault := d.Client.Classify(err)
			if fault == FaultNotFound {
				return merged, nil
			}
			return nil, &DispatchError{Action: action, Fault: fault, Err: err}
		}
		next, ok := response.(map[string]any)
		if !ok {
			return merged, nil
		}
		merged = mergePages(merged, next)
		current = next
	}
	logDiagnostic("action %s: stopped after %d pages (safety cap)", action, limit)
	return merged, nil
}

func nextPageToken(response map[string]any) (string, string, bool) {
	// IAM-style outputs gate the Marker field on IsTruncated.
	if truncated, ok := response["IsTruncated"].(bool); ok && !truncated {
		return "", "", false
	}
	for _, pt := range pageTokens {
		if token, ok := response[pt.responseField].(string); ok && token != "" {
			return pt.requestField, token, true
		}
	}
	return "", "", false
}

// mergePages appends list fields of the next page onto the accumulated
// response; scalar fields keep the first page's values.
func mergePages(base, next map[string]any) map[string]any {
	merged := make(map[string]any, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range next {
		nextList, ok := v.([]any)
		if !ok {
			continue
		}
		if baseList, ok := merged[k].([]any); ok {
			merged[k] = append(append([]any{}, baseList...), nextList...)
		}
	}
	// Carry pagination state from the latest page so the loop terminates.
	for _, pt := range pageTokens {
		if _, ok := next[pt.responseField]; ok {
			merged[pt.responseField] = next[pt.responseField]
		} else {
			delete(merged, pt.responseField)
		}
	}
	if truncated, ok := next["IsTruncated"]; ok {
		merged["IsTruncated"] = truncated
	}
	return merged
}
