package manager

import (
	"sort"
	"time"

	"apyd/pkg/types"
)

// Status builds the pool report served by /stats.
func (m *Manager) Status() types.StatusResponse {
	reg := m.Registry()
	now := time.Now()
	resp := types.StatusResponse{
		InstalledPairs: len(reg.Pairs),
		InstalledModes: len(reg.Analyzers) + len(reg.Generators) + len(reg.Taggers),
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		StartsTotal:    m.starts.Load(),
		RetiresTotal:   m.retires.Load(),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	resp.Pairs = make([]types.PairStatus, 0, len(names))
	for _, name := range names {
		ps := types.PairStatus{Pair: name}
		for _, p := range m.pools[name].live {
			ps.Pipelines = append(ps.Pipelines, types.PipelineStatus{
				Users:     p.ActiveUsers(),
				Uses:      p.TotalUses(),
				LastUsed:  p.LastUsed().Unix(),
				Stuck:     p.Stuck(),
				Streaming: p.Streaming(),
				PIDs:      p.PIDs(),
			})
		}
		resp.Pairs = append(resp.Pairs, ps)
	}
	resp.Holding = len(m.holding)
	return resp
}
