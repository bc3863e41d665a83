package manager

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"time"

	"apyd/internal/langpair"
	"apyd/internal/pipeline"
)

// ErrClosed is returned once Close has started.
var ErrClosed = errors.New("manager: closed")

// pipeHeap is a min-heap of pipelines by active users. Loads change while a
// pipeline sits in the heap, so the order is restored on insert, on checkout
// and on sweep. Releases are lock-free, so between sweeps the root may not be
// the true minimum.
type pipeHeap []pipeline.Pipeline

func (h pipeHeap) Len() int           { return len(h) }
func (h pipeHeap) Less(i, j int) bool { return h[i].ActiveUsers() < h[j].ActiveUsers() }
func (h pipeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pipeHeap) Push(x any)        { *h = append(*h, x.(pipeline.Pipeline)) }
func (h *pipeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// pool holds the live pipelines of one pair.
type pool struct {
	key  langpair.Key
	live pipeHeap
}

// pick returns the index of the least-loaded pipeline, passing over stuck
// ones while a healthy alternative exists.
func (pl *pool) pick() int {
	if !pl.live[0].Stuck() {
		return 0
	}
	healthy := -1
	for i, p := range pl.live {
		if p.Stuck() {
			continue
		}
		if healthy < 0 || p.ActiveUsers() < pl.live[healthy].ActiveUsers() {
			healthy = i
		}
	}
	if healthy >= 0 {
		return healthy
	}
	return 0
}

// checkoutLocked registers a caller on the picked pipeline and restores the
// heap order around it.
func (pl *pool) checkoutLocked() (pipeline.Pipeline, func()) {
	i := pl.pick()
	p := pl.live[i]
	release := p.Enter()
	heap.Fix(&pl.live, i)
	return p, release
}

// held is a retired pipeline draining its last callers.
type held struct {
	pair   string
	p      pipeline.Pipeline
	reason string
}

func (m *Manager) poolLocked(key langpair.Key) *pool {
	name := key.String()
	pl := m.pools[name]
	if pl == nil {
		pl = &pool{key: key}
		m.pools[name] = pl
	}
	return pl
}

func (m *Manager) shouldGrowLocked(pl *pool) bool {
	if len(pl.live) == 0 {
		return true
	}
	return len(pl.live) < m.maxPipes && pl.live[0].ActiveUsers() > m.maxUsers
}

func (m *Manager) creatorSlotLocked(name string) chan struct{} {
	slot := m.creatorSlots[name]
	if slot == nil {
		slot = make(chan struct{}, 1)
		m.creatorSlots[name] = slot
	}
	return slot
}

// GetPipeline returns the pipeline that should serve the next request for
// key, starting a new one when the pair has none or when the least-loaded
// one is over MaxUsersPerPipe and the pool may still grow. The caller is
// registered on the pipeline before the pool lock is dropped, so a
// concurrent sweep cannot close it; the returned release func must be
// deferred.
func (m *Manager) GetPipeline(ctx context.Context, key langpair.Key) (pipeline.Pipeline, func(), error) {
	name := key.String()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrClosed
	}
	pl := m.poolLocked(key)
	if !m.shouldGrowLocked(pl) {
		p, release := pl.checkoutLocked()
		m.mu.Unlock()
		return p, release, nil
	}
	slot := m.creatorSlotLocked(name)
	m.mu.Unlock()

	// One construction per pair at a time; processes are spawned without
	// holding the pool lock.
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-slot }()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrClosed
	}
	pl = m.poolLocked(key)
	if !m.shouldGrowLocked(pl) {
		p, release := pl.checkoutLocked()
		m.mu.Unlock()
		return p, release, nil
	}
	m.mu.Unlock()

	p, err := m.startPipeline(name)

	m.mu.Lock()
	pl = m.poolLocked(key)
	if err != nil {
		if len(pl.live) == 0 {
			m.mu.Unlock()
			return nil, nil, err
		}
		m.log.Warn().Err(err).Str("pair", name).Msg("pipeline event=grow_failed")
		existing, release := pl.checkoutLocked()
		m.mu.Unlock()
		return existing, release, nil
	}
	if m.closed {
		m.mu.Unlock()
		_ = p.Close()
		return nil, nil, ErrClosed
	}
	heap.Push(&pl.live, p)
	picked, release := pl.checkoutLocked()
	live := len(pl.live)
	m.mu.Unlock()

	m.starts.Add(1)
	pipelinesStartedTotal.WithLabelValues(name).Inc()
	pipelinesLive.WithLabelValues(name).Set(float64(live))
	m.publish(Event{Name: EventPipelineStart, Pair: name, Fields: map[string]any{
		"streaming": p.Streaming(), "pids": p.PIDs(), "live": live,
	}})
	return picked, release, nil
}

// startPipeline parses the pair's mode file (cached) and spawns a pipeline.
func (m *Manager) startPipeline(name string) (pipeline.Pipeline, error) {
	md, ok := m.Registry().Pairs[name]
	if !ok {
		return nil, ErrNotInstalled(name)
	}
	parsed, err := m.cache.Get(md.Path)
	if err != nil {
		m.log.Error().Err(err).Str("pair", name).Str("path", md.Path).Msg("pipeline event=parse_failed")
		return nil, err
	}
	p, err := m.newPipeline(parsed, pipeline.Config{
		Logger:     m.log.With().Str("pair", name).Logger(),
		CloseGrace: m.closeGrace,
	})
	if err != nil {
		m.log.Error().Err(err).Str("pair", name).Msg("pipeline event=start_failed")
		return nil, err
	}
	m.log.Info().Str("pair", name).Bool("streaming", p.Streaming()).Ints("pids", p.PIDs()).Msg("pipeline event=start")
	return p, nil
}

// Sweep retires stuck, over-used and idle pipelines and closes retired ones
// whose last caller has left. It runs after every completed request.
func (m *Manager) Sweep() {
	now := time.Now()
	m.mu.Lock()
	for name, pl := range m.pools {
		sorted := append([]pipeline.Pipeline(nil), pl.live...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ActiveUsers() < sorted[j].ActiveUsers() })
		healthy := sorted[:0]
		for _, p := range sorted {
			if reason := m.brokenReason(p); reason != "" {
				m.holdLocked(name, p, reason)
				continue
			}
			healthy = append(healthy, p)
		}
		// The floor counts healthy survivors only.
		kept := healthy[:0]
		for _, p := range healthy {
			if len(kept) >= m.minPipes && m.idle(p, now) {
				m.holdLocked(name, p, "idle")
				continue
			}
			kept = append(kept, p)
		}
		pl.live = pipeHeap(kept)
		heap.Init(&pl.live)
		if len(pl.live) == 0 {
			delete(m.pools, name)
			pipelinesLive.DeleteLabelValues(name)
			continue
		}
		pipelinesLive.WithLabelValues(name).Set(float64(len(pl.live)))
	}
	drained := m.drainHoldingLocked()
	m.mu.Unlock()
	m.closeHeld(drained)
}

// brokenReason reports why p must be retired regardless of the pool floor.
func (m *Manager) brokenReason(p pipeline.Pipeline) string {
	switch {
	case p.Stuck():
		return "stuck"
	case p.TotalUses() > m.restartAfter:
		return "restart"
	}
	return ""
}

func (m *Manager) idle(p pipeline.Pipeline, now time.Time) bool {
	return m.maxIdle != 0 && now.Sub(p.LastUsed()) > m.maxIdle
}

func (m *Manager) holdLocked(name string, p pipeline.Pipeline, reason string) {
	m.holding = append(m.holding, held{pair: name, p: p, reason: reason})
	m.retires.Add(1)
	pipelinesRetiredTotal.WithLabelValues(reason).Inc()
	m.log.Info().Str("pair", name).Str("reason", reason).Int64("uses", p.TotalUses()).Msg("pipeline event=retire")
	m.publish(Event{Name: EventPipelineRetire, Pair: name, Fields: map[string]any{
		"reason": reason, "uses": p.TotalUses(), "users": p.ActiveUsers(),
	}})
}

// retireAllLocked moves every live pipeline of a pair to the holding set.
func (m *Manager) retireAllLocked(name string, pl *pool, reason string) {
	for _, p := range pl.live {
		m.holdLocked(name, p, reason)
	}
	pl.live = nil
	delete(m.pools, name)
	pipelinesLive.DeleteLabelValues(name)
}

// drainHoldingLocked removes and returns held pipelines without callers.
func (m *Manager) drainHoldingLocked() []held {
	var drained []held
	kept := m.holding[:0]
	for _, h := range m.holding {
		if h.p.ActiveUsers() == 0 {
			drained = append(drained, h)
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(m.holding); i++ {
		m.holding[i] = held{}
	}
	m.holding = kept
	pipelinesHolding.Set(float64(len(kept)))
	return drained
}

// closeHeld terminates drained pipelines in the background; Close waits for
// them.
func (m *Manager) closeHeld(hs []held) {
	for _, h := range hs {
		m.closing.Add(1)
		go func() {
			defer m.closing.Done()
			m.closePipeline(h)
		}()
	}
}

func (m *Manager) closePipeline(h held) error {
	pids := h.p.PIDs()
	err := h.p.Close()
	ev := m.log.Info()
	if err != nil {
		ev = m.log.Warn().Err(err)
	}
	ev.Str("pair", h.pair).Str("reason", h.reason).Ints("pids", pids).Msg("pipeline event=close")
	m.publish(Event{Name: EventPipelineClose, Pair: h.pair, Fields: map[string]any{"reason": h.reason, "pids": pids}})
	return err
}
