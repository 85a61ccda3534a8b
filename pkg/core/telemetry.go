package core

import "time"

// PerformanceSample is one periodic reading of the simulation loop.
type PerformanceSample struct {
	Time time.Time `json:"time"`
	Tick uint64    `json:"tick"`
	// TickRate is the achieved rate over the sample window, in Hz.
	TickRate float32 `json:"tickRate"`
	Actors   int     `json:"actors"`
	Nodes    int     `json:"nodes"`
	Beams    int     `json:"beams"`
	Paused   bool    `json:"paused"`

	Queues            QueueLengths  `json:"queues"`
	LastWriteDuration time.Duration `json:"lastWriteDuration"`
}

// QueueLengths are the write queue depths of a recording backend.
type QueueLengths struct {
	Frames       int `json:"frames"`
	Events       int `json:"events"`
	Inputs       int `json:"inputs"`
	ActorStates  int `json:"actorStates"`
	Performances int `json:"performances"`
}

// ActorTelemetry is the drivetrain summary of one actor at a tick.
type ActorTelemetry struct {
	Tick       uint64
	Time       time.Time
	Actor      ActorID
	Definition string
	State      ActorState
	EngineRPM  float32
	Gear       int
	Running    bool
	// WheelSpeed is the mean absolute wheel rpm.
	WheelSpeed float32
	Nodes      int
	Broken     bool
}

// Telemetry summarises every actor of a snapshot. labels maps ids to
// definition names and may be nil.
func Telemetry(s *Snapshot, labels map[ActorID]string) []ActorTelemetry {
	out := make([]ActorTelemetry, 0, len(s.Actors))
	t := time.Unix(0, s.Timestamp)
	for i := range s.Actors {
		a := &s.Actors[i]
		var ws float32
		for _, r := range a.WheelRPM {
			if r < 0 {
				r = -r
			}
			ws += r
		}
		if n := len(a.WheelRPM); n > 0 {
			ws /= float32(n)
		}
		out = append(out, ActorTelemetry{
			Tick:       s.Tick,
			Time:       t,
			Actor:      a.ID,
			Definition: labels[a.ID],
			State:      a.State,
			EngineRPM:  a.EngineRPM,
			Gear:       a.Gear,
			Running:    a.Running,
			WheelSpeed: ws,
			Nodes:      len(a.Nodes),
			Broken:     a.Broken,
		})
	}
	return out
}
