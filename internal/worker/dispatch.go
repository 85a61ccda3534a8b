package worker

import (
	"github.com/beamsim/beamsim/internal/dispatcher"
	"github.com/beamsim/beamsim/pkg/core"
)

// RegisterHandlers subscribes the backend and the telemetry sink to every
// event kind.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Labels are tracked synchronously so a telemetry sample taken right
	// after a spawn carries the definition name.
	d.Register(core.EventActorSpawned, m.handleSpawned, dispatcher.Named("labels"))
	d.Register(core.EventActorRemoved, m.handleRemoved, dispatcher.Named("labels"))

	// A single queue keeps the backend's events in publication order.
	d.RegisterAll("storage", m.handleRecord, dispatcher.Buffered(10000), dispatcher.Logged())

	if m.deps.Telemetry != nil {
		d.RegisterAll("telemetry", m.handleTelemetry, dispatcher.Buffered(2000))
	}
}

func (m *Manager) handleSpawned(e core.Event) error {
	m.labelsMu.Lock()
	defer m.labelsMu.Unlock()
	m.labels[e.Actor] = e.Label
	return nil
}

func (m *Manager) handleRemoved(e core.Event) error {
	m.labelsMu.Lock()
	defer m.labelsMu.Unlock()
	delete(m.labels, e.Actor)
	return nil
}

func (m *Manager) handleRecord(e core.Event) error {
	return m.deps.Backend.RecordEvent(e)
}

func (m *Manager) handleTelemetry(e core.Event) error {
	return m.deps.Telemetry.WriteEvent(e)
}
