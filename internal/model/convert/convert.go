package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/beamsim/beamsim/internal/model"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	var gravity [3]float32
	if len(s.Gravity) > 0 {
		_ = json.Unmarshal(s.Gravity, &gravity)
	}
	return core.Session{
		ID:        s.UUID,
		Name:      s.Name,
		StartTime: s.StartTime,
		TickRate:  s.TickRate,
		Gravity:   mgl32.Vec3(gravity),
		Tags:      s.Tag,
	}
}

// EventToCore converts a GORM model.EventRecord to a core.Event.
func EventToCore(e model.EventRecord) (core.Event, error) {
	kind, ok := core.ParseEventKind(e.Kind)
	if !ok {
		return core.Event{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	var p eventPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return core.Event{}, fmt.Errorf("event %d payload: %w", e.ID, err)
		}
	}
	return core.Event{
		Kind:     kind,
		Tick:     e.Tick,
		Time:     e.Time,
		Actor:    core.ActorID(e.ActorID),
		Index:    p.Index,
		Group:    p.Group,
		Affector: core.AffectorID(p.Affector),
		Target:   p.Target,
		Label:    p.Label,
		Message:  p.Message,
	}, nil
}

// InputsToCore groups input rows back into per-tick records, ordered by
// tick and then actor id.
func InputsToCore(rows []model.InputRecord) ([]replay.InputRecord, error) {
	byTick := make(map[uint64]*replay.InputRecord)
	for _, row := range rows {
		var in core.InputSnapshot
		if err := json.Unmarshal(row.Input, &in); err != nil {
			return nil, fmt.Errorf("input %d: %w", row.ID, err)
		}
		r, ok := byTick[row.Tick]
		if !ok {
			r = &replay.InputRecord{Tick: row.Tick, Timestamp: row.Time}
			byTick[row.Tick] = r
		}
		r.Inputs = append(r.Inputs, replay.ActorInput{ID: core.ActorID(row.ActorID), Input: in})
	}

	out := make([]replay.InputRecord, 0, len(byTick))
	for _, r := range byTick {
		sort.Slice(r.Inputs, func(i, j int) bool { return r.Inputs[i].ID < r.Inputs[j].ID })
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}

// ReplayFrameToCore decodes a stored frame.
func ReplayFrameToCore(m model.ReplayFrame) (replay.Frame, error) {
	f, err := replay.NewReader(bytes.NewReader(m.Payload)).NextFrame()
	if err != nil {
		return replay.Frame{}, fmt.Errorf("frame at tick %d: %w", m.Tick, err)
	}
	return f, nil
}

// PerformanceToCore converts a GORM model.PerformanceSample.
func PerformanceToCore(p model.PerformanceSample) core.PerformanceSample {
	return core.PerformanceSample{
		Time:     p.Time,
		Tick:     p.Tick,
		TickRate: p.TickRate,
		Actors:   int(p.Actors),
		Nodes:    int(p.Nodes),
		Beams:    int(p.Beams),
		Queues: core.QueueLengths{
			Frames:       int(p.QueueLengths.Frames),
			Events:       int(p.QueueLengths.Events),
			Inputs:       int(p.QueueLengths.Inputs),
			ActorStates:  int(p.QueueLengths.ActorStates),
			Performances: int(p.QueueLengths.Performances),
		},
		LastWriteDuration: time.Duration(float64(p.LastWriteDurationMs) * float64(time.Millisecond)),
	}
}
