package nbio

import "sync"

// DebugProbes is a minimal runtime-introspection registry: components
// register a named snapshot function once, and an embedder can pull a full
// dump at any time without reaching into internals. This is a concrete,
// process-local adapter for runtime introspection, grounded on the
// probe-registry shape used by momentics-hioload-ws's control/debug.go and
// api/debug.go.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates an empty probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]func() any)}
}

// RegisterProbe installs or replaces a named probe.
func (d *DebugProbes) RegisterProbe(name string, fn func() any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes[name] = fn
}

// DumpState runs every registered probe and returns their results keyed by
// name.
func (d *DebugProbes) DumpState() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.probes))
	for name, fn := range d.probes {
		out[name] = fn()
	}
	return out
}
