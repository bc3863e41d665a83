package manager

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"apyd/internal/langpair"
	"apyd/internal/modes"
	"apyd/internal/registry"
)

type Manager struct {
	mu    sync.RWMutex
	pools map[string]*pool
	// holding are retired pipelines waiting for their last caller.
	holding []held
	// creatorSlots serializes pipeline construction per pair.
	creatorSlots map[string]chan struct{}
	closed       bool

	// routing is swapped as a whole whenever the registry changes.
	routing atomic.Pointer[routing]
	cache   *modes.Cache

	maxPipes     int
	minPipes     int
	maxUsers     int
	maxIdle      time.Duration
	restartAfter int64
	timeout      time.Duration
	closeGrace   time.Duration
	umbrella     string

	log         zerolog.Logger
	publisher   atomic.Value
	newPipeline PipelineFactory

	closing   sync.WaitGroup
	startTime time.Time
	starts    atomic.Uint64
	retires   atomic.Uint64
}

// routing is an immutable view of what is installed and how pairs chain.
type routing struct {
	reg       *registry.Registry
	installed langpair.Set
	paths     langpair.PathTable
	// hops maps "srcBase-trgBase" to the installed key serving that hop.
	hops map[string]langpair.Key
}

func newRouting(reg *registry.Registry) *routing {
	installed := reg.Installed()
	keys := installed.Keys()
	hops := make(map[string]langpair.Key, len(keys))
	for _, k := range keys {
		hop := k.Src.Base + "-" + k.Trg.Base
		// Prefer the plain pair; otherwise the first variant in sorted order.
		if cur, ok := hops[hop]; ok && len(cur.Src.Variants)+len(cur.Trg.Variants) <= len(k.Src.Variants)+len(k.Trg.Variants) {
			continue
		}
		hops[hop] = k
	}
	return &routing{
		reg:       reg,
		installed: installed,
		paths:     langpair.BuildPathTable(langpair.BuildGraph(keys)),
		hops:      hops,
	}
}

func New(reg *registry.Registry) *Manager {
	// Delegate to NewWithConfig to centralize defaults
	return NewWithConfig(ManagerConfig{Registry: reg})
}

// SetRegistry atomically replaces the installed set and rebuilds the path
// table. Live pipelines of pairs that disappeared are retired and closed
// once their last caller leaves; pipelines of pairs that remain are kept.
func (m *Manager) SetRegistry(reg *registry.Registry) {
	r := newRouting(reg)
	m.routing.Store(r)

	m.mu.Lock()
	for name, pl := range m.pools {
		if !r.installed.Has(pl.key) {
			m.retireAllLocked(name, pl, "uninstalled")
		}
	}
	drained := m.drainHoldingLocked()
	m.mu.Unlock()
	m.closeHeld(drained)

	m.publish(Event{Name: EventRegistrySwap, Fields: map[string]any{
		"pairs": len(reg.Pairs), "analyzers": len(reg.Analyzers),
		"generators": len(reg.Generators), "taggers": len(reg.Taggers),
	}})
	m.log.Info().Int("pairs", len(reg.Pairs)).Msg("manager event=registry_swap")
}

// Registry returns the current registry snapshot.
func (m *Manager) Registry() *registry.Registry { return m.routing.Load().reg }

// Ready reports whether anything is installed and the manager is open.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	return !closed && !m.Registry().Empty()
}

// ListPairs returns the installed pairs in sorted order.
func (m *Manager) ListPairs() []langpair.Key {
	return m.routing.Load().installed.Keys()
}

// ListModes returns lookup key to mode name for kind.
func (m *Manager) ListModes(kind registry.Kind) map[string]string {
	modesOf := m.Registry().Modes(kind)
	out := make(map[string]string, len(modesOf))
	for k, md := range modesOf {
		out[k] = md.Name
	}
	return out
}

// Paths returns every multi-hop path from the source language's base code.
func (m *Manager) Paths(src string) map[string][]string {
	lang, err := langpair.ParseLang(src)
	if err != nil {
		return map[string][]string{}
	}
	out := map[string][]string{}
	for dst, p := range m.routing.Load().paths[lang.Base] {
		out[dst] = append([]string(nil), p...)
	}
	return out
}

// PathSources lists the languages that have outgoing paths.
func (m *Manager) PathSources() []string {
	t := m.routing.Load().paths
	out := make([]string, 0, len(t))
	for src, dsts := range t {
		if len(dsts) > 0 {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}
