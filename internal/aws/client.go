package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"complyscan/internal/engine"
	"complyscan/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Factory builds and caches authenticated service clients. The cache is the
// only mutable state shared across scan workers; values are immutable once
// constructed.
type Factory struct {
	profile string

	mu    sync.RWMutex
	cache map[string]*Client
}

func NewFactory(profile string) *Factory {
	return &Factory{
		profile: profile,
		cache:   make(map[string]*Client),
	}
}

// GetClient returns the adapter for one (account, service, region)
// coordinate, constructing it on first use.
func (f *Factory) GetClient(ctx context.Context, provider, service string, account models.Account, region string) (engine.Client, error) {
	if provider != "aws" {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	key := account.ID + "|" + service + "|" + region
	f.mu.RLock()
	client, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	cfg, err := f.loadConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config for account %s: %w", account.ID, err)
	}

	sdkClient, err := newServiceClient(service, cfg)
	if err != nil {
		return nil, err
	}
	client = newReflectClient(service, sdkClient)

	f.mu.Lock()
	if existing, ok := f.cache[key]; ok {
		client = existing
	} else {
		f.cache[key] = client
	}
	f.mu.Unlock()
	return client, nil
}

func (f *Factory) loadConfig(ctx context.Context, region string) (awssdk.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if f.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(f.profile))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func newServiceClient(service string, cfg awssdk.Config) (any, error) {
	switch service {
	case "iam":
		return iam.NewFromConfig(cfg), nil
	case "ec2":
		return ec2.NewFromConfig(cfg), nil
	case "sts":
		return sts.NewFromConfig(cfg), nil
	case "organizations":
		return organizations.NewFromConfig(cfg), nil
	default:
		return nil, fmt.Errorf("no AWS client registered for service %q", service)
	}
}

// Client adapts one SDK service client to the engine's action interface. The
// method table is enumerated once at construction, so an unknown action is a
// cheap map miss rather than a per-call reflection walk.
type Client struct {
	service string
	methods map[string]reflect.Value
}

func newReflectClient(service string, sdkClient any) *Client {
	value := reflect.ValueOf(sdkClient)
	methods := make(map[string]reflect.Value)

	for i := 0; i < value.NumMethod(); i++ {
		method := value.Type().Method(i)
		if isActionMethod(value.Method(i).Type()) {
			methods[method.Name] = value.Method(i)
		}
	}
	return &Client{service: service, methods: methods}
}

// isActionMethod matches the SDK v2 operation shape:
// func(context.Context, *XInput, ...func(*Options)) (*XOutput, error).
func isActionMethod(t reflect.Type) bool {
	if !t.IsVariadic() || t.NumIn() != 3 || t.NumOut() != 2 {
		return false
	}
	if t.In(0) != reflect.TypeOf((*context.Context)(nil)).Elem() {
		return false
	}
	if t.In(1).Kind() != reflect.Ptr || t.In(1).Elem().Kind() != reflect.Struct {
		return false
	}
	return t.Out(1) == reflect.TypeOf((*error)(nil)).Elem()
}

// Invoke dispatches an action by name. The parameter map is decoded into the
// operation's input struct and the output is normalized back into maps and
// slices via a JSON round trip, so the engine never sees SDK types.
func (c *Client) Invoke(ctx context.Context, action string, params map[string]any) (any, error) {
	method, ok := c.methods[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q for service %s (configuration error)", action, c.service)
	}

	input := reflect.New(method.Type().In(1).Elem())
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("action %s: cannot encode params: %w", action, err)
		}
		if err := json.Unmarshal(data, input.Interface()); err != nil {
			coerced, ok := coerceScalarToList(err, params)
			if !ok {
				return nil, fmt.Errorf("action %s: params do not match input shape: %w", action, err)
			}
			logDiagnostic("action %s: wrapped scalar parameter as singleton list", action)
			data, marshalErr := json.Marshal(coerced)
			if marshalErr != nil {
				return nil, fmt.Errorf("action %s: cannot encode params: %w", action, marshalErr)
			}
			if err := json.Unmarshal(data, input.Interface()); err != nil {
				return nil, fmt.Errorf("action %s: params do not match input shape: %w", action, err)
			}
		}
	}

	results := method.Call([]reflect.Value{reflect.ValueOf(ctx), input})
	if errValue := results[1]; !errValue.IsNil() {
		return nil, errValue.Interface().(error)
	}
	return normalize(results[0].Interface())
}

// coerceScalarToList handles a string parameter handed to an operation
// field that wants a list by wrapping it as a singleton. Any other shape
// mismatch stays a configuration error.
func coerceScalarToList(err error, params map[string]any) (map[string]any, bool) {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return nil, false
	}
	if typeErr.Value != "string" || typeErr.Type.Kind() != reflect.Slice {
		return nil, false
	}

	field := strings.TrimPrefix(typeErr.Field, ".")
	if strings.Contains(field, ".") {
		return nil, false
	}
	value, ok := params[field].(string)
	if !ok {
		return nil, false
	}

	coerced := make(map[string]any, len(params))
	for k, v := range params {
		coerced[k] = v
	}
	coerced[field] = []any{value}
	return coerced, true
}

func normalize(output any) (any, error) {
	if output == nil {
		return nil, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("cannot normalize response: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("cannot normalize response: %w", err)
	}
	return normalized, nil
}
