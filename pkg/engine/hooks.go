package engine

import (
	"context"
	"sort"
	"sync"
)

// HookPhase tells a hook which boundary it is being invoked at.
type HookPhase string

const (
	HookPre  HookPhase = "pre"
	HookPost HookPhase = "post"
)

// HookFunc is a named side-effect callback invoked at a component's
// pre/post boundary. A non-nil error aborts the run like any other
// component failure.
type HookFunc func(ctx context.Context, comp ComponentSpec, phase HookPhase) error

// HookRegistry maps hook names to callbacks. It is an explicit value
// injected into the executor; there is no process-wide registry. Names
// declared by a component but never registered are silently skipped,
// which makes hooks a soft extension point.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]HookFunc
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string]HookFunc)}
}

// Register binds a callback to a name, replacing any previous binding.
func (r *HookRegistry) Register(name string, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = fn
}

// Has reports whether a hook is registered under name.
func (r *HookRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hooks[name]
	return ok
}

// Get returns the callback registered under name.
func (r *HookRegistry) Get(name string) (HookFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.hooks[name]
	return fn, ok
}

// Names returns the registered hook names, for diagnostics.
func (r *HookRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for n := range r.hooks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// runHooks invokes the component's registered hooks for a phase, in the
// declared order. Unregistered names are skipped.
func runHooks(ctx context.Context, reg *HookRegistry, comp ComponentSpec, phase HookPhase) error {
	if reg == nil {
		return nil
	}
	for _, name := range comp.Hooks {
		fn, ok := reg.Get(name)
		if !ok {
			continue
		}
		if err := fn(ctx, comp, phase); err != nil {
			return err
		}
	}
	return nil
}
