package manager

import (
	"golang.org/x/sync/errgroup"
)

// Close stops accepting work and terminates every pipeline, live or held,
// in parallel. It should run after the HTTP server has drained.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.closing.Wait()
		return nil
	}
	m.closed = true
	var all []held
	for name, pl := range m.pools {
		for _, p := range pl.live {
			all = append(all, held{pair: name, p: p, reason: "shutdown"})
		}
		pipelinesLive.DeleteLabelValues(name)
	}
	all = append(all, m.holding...)
	m.pools = make(map[string]*pool)
	m.holding = nil
	pipelinesHolding.Set(0)
	m.mu.Unlock()

	var g errgroup.Group
	for _, h := range all {
		g.Go(func() error { return m.closePipeline(h) })
	}
	err := g.Wait()
	m.closing.Wait()
	m.log.Info().Int("pipelines", len(all)).Msg("manager event=closed")
	return err
}
