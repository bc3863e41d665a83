package manager

// Event names published by the manager.
const (
	EventPipelineStart  = "pipeline_start"
	EventPipelineRetire = "pipeline_retire"
	EventPipelineStuck  = "pipeline_stuck"
	EventPipelineClose  = "pipeline_close"
	EventRegistrySwap   = "registry_swap"
)

// Event represents a pool lifecycle event: name, the pair concerned and
// optional fields.
type Event struct {
	Name   string
	Pair   string
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// SetEventPublisher replaces the publisher; nil restores the no-op default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher.Store(publisherBox{p})
}

// publisherBox gives atomic.Value a single concrete type to hold.
type publisherBox struct{ EventPublisher }

func (m *Manager) publish(e Event) {
	m.publisher.Load().(publisherBox).Publish(e)
}
