package router

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/petrijr/constellation/pkg/api"
)

// The registry maps activity type names to prototypes so activities can be
// reconstructed on a receiving node. Only activities that may cross node
// boundaries need to be registered; purely local activities (closures over
// local state included) never touch it.
var registry = struct {
	mu      sync.RWMutex
	byName  map[string]reflect.Type
	byType  map[reflect.Type]string
}{
	byName: make(map[string]reflect.Type),
	byType: make(map[reflect.Type]string),
}

// Register makes the activity type of prototype constructible by name on
// every node. Call it from an init function or before the runtime starts,
// with the same registrations on every node of the run. Registering the same
// name twice panics, like gob.Register.
func Register(name string, prototype api.Activity) {
	if name == "" {
		panic("router: Register with empty name")
	}
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if prev, ok := registry.byName[name]; ok && prev != t {
		panic(fmt.Sprintf("router: name %q already registered for %v", name, prev))
	}
	registry.byName[name] = t
	registry.byType[t] = name
}

// nameOf returns the registered name for a's concrete type.
func nameOf(a api.Activity) (string, error) {
	t := reflect.TypeOf(a)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	name, ok := registry.byType[t]
	if !ok {
		return "", fmt.Errorf("router: activity type %v not registered", t)
	}
	return name, nil
}

// newByName constructs a fresh zero value of the named activity type.
func newByName(name string) (api.Activity, error) {
	registry.mu.RLock()
	t, ok := registry.byName[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("router: unknown activity type %q", name)
	}
	a, ok := reflect.New(t).Interface().(api.Activity)
	if !ok {
		return nil, fmt.Errorf("router: registered type %v does not implement Activity", t)
	}
	return a, nil
}
