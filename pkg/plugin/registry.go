// Package plugin provides a registry of the interchangeable collaborators the
// orchestrator is wired from: speech providers, automation drivers for each
// host, and audio sinks. Implementations register themselves from init().
package plugin

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Plugin kinds.
const (
	KindTTS    = "tts"    // tts.Provider
	KindDriver = "driver" // driver.Driver, named after the target host
	KindSink   = "sink"   // sink.Sink
)

// Kinds returns the plugin kinds a run is wired from, in wiring order.
func Kinds() []string {
	return []string{KindDriver, KindTTS, KindSink}
}

func knownKind(kind string) bool {
	return slices.Contains(Kinds(), kind)
}

// DefaultPluginDir is searched by LoadDynamicPlugins when no directory is
// given and GROKEVAL_PLUGIN_PATH is unset.
const DefaultPluginDir = "/usr/local/lib/grokeval/plugins"

var (
	// ErrDynamicUnsupported is returned by LoadDynamicPlugins on builds
	// without the plugindyn tag or outside Linux.
	ErrDynamicUnsupported = errors.New("dynamic plugin loading not supported on this platform or build configuration (use -tags=plugindyn on Linux)")

	// ErrNotRegistered is returned by Create for an unknown kind/name pair,
	// typically a misspelled tts.provider, sink.type or target_host.
	ErrNotRegistered = errors.New("plugin not registered")
)

// Factory creates a new instance from configuration.
// The returned value should be cast to the interface of its kind
// (tts.Provider, driver.Driver, or sink.Sink).
type Factory func(cfg map[string]any) (any, error)

// Plugin represents a registered plugin with its metadata.
type Plugin struct {
	Kind        string         // KindTTS, KindDriver, KindSink
	Name        string         // e.g. "openai", "browser", "wav"
	Factory     Factory        // creates instances
	Description string         // shown by "grokeval plugin list"
	Version     string         // plugin version
	Config      map[string]any // documents the keys the factory reads
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin // [kind][name]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]map[string]*Plugin)}
}

var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry. Panics on a duplicate
// kind/name pair or an unknown kind.
func Register(kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a plugin with metadata to the global registry.
func RegisterWithMetadata(p *Plugin) {
	globalRegistry.RegisterWithMetadata(p)
}

// Get retrieves a plugin factory from the global registry.
func Get(kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns the globally registered plugins of kind, or all of them when
// kind is empty.
func List(kind string) []*Plugin {
	return globalRegistry.List(kind)
}

// ListKinds returns the kinds with at least one global registration.
func ListKinds() []string {
	return globalRegistry.ListKinds()
}

// Names returns the globally registered plugin names of each kind.
func Names() map[string][]string {
	return globalRegistry.Names()
}

// Create looks up a plugin in the global registry and instantiates it.
func Create(kind, name string, cfg map[string]any) (any, error) {
	return globalRegistry.Create(kind, name, cfg)
}

// Register adds a factory without metadata.
func (r *Registry) Register(kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{Kind: kind, Name: name, Factory: factory})
}

// RegisterWithMetadata adds p. Registration happens from init(), so
// invalid or duplicate plugins panic rather than return an error.
func (r *Registry) RegisterWithMetadata(p *Plugin) {
	switch {
	case p.Kind == "":
		panic("plugin kind cannot be empty")
	case !knownKind(p.Kind):
		panic(fmt.Sprintf("plugin %s: unknown kind %q (want one of %s)", p.Name, p.Kind, strings.Join(Kinds(), ", ")))
	case p.Name == "":
		panic("plugin name cannot be empty")
	case p.Factory == nil:
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[p.Kind] == nil {
		r.plugins[p.Kind] = make(map[string]*Plugin)
	}
	if existing, ok := r.plugins[p.Kind][p.Name]; ok {
		panic(fmt.Sprintf("plugin %s/%s already registered (existing version: %s, new version: %s)",
			p.Kind, p.Name, existing.Version, p.Version))
	}
	r.plugins[p.Kind][p.Name] = p
}

// Get retrieves a plugin factory.
func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[kind][name]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

// List returns the plugins of kind, or all plugins when kind is empty,
// sorted by kind then name.
func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plugins []*Plugin
	for k, byName := range r.plugins {
		if kind == "" || k == kind {
			plugins = slices.AppendSeq(plugins, maps.Values(byName))
		}
	}
	slices.SortFunc(plugins, func(a, b *Plugin) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Name, b.Name))
	})
	return plugins
}

// ListKinds returns the kinds with at least one registration, sorted.
func (r *Registry) ListKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.plugins))
}

// Names returns the sorted plugin names of every known kind. Kinds
// without registrations map to an empty slice.
func (r *Registry) Names() map[string][]string {
	names := make(map[string][]string, len(Kinds()))
	for _, kind := range Kinds() {
		names[kind] = []string{}
	}
	for _, p := range r.List("") {
		names[p.Kind] = append(names[p.Kind], p.Name)
	}
	return names
}

// Create looks up a plugin and instantiates it with cfg.
func (r *Registry) Create(kind, name string, cfg map[string]any) (any, error) {
	factory, ok := r.Get(kind, name)
	if !ok {
		registered := "none"
		if names := r.Names()[kind]; len(names) > 0 {
			registered = strings.Join(names, ", ")
		}
		return nil, fmt.Errorf("no %s plugin named %q (registered: %s): %w", kind, name, registered, ErrNotRegistered)
	}
	instance, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", kind, name, err)
	}
	return instance, nil
}
