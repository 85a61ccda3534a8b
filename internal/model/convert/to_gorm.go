// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/model"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"gorm.io/datatypes"
)

// eventPayload is the kind-specific part of an event row.
type eventPayload struct {
	Index    int           `json:"index"`
	Group    int           `json:"group,omitempty"`
	Affector uint64        `json:"affector,omitempty"`
	Target   *core.NodeRef `json:"target,omitempty"`
	Label    string        `json:"label,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	gravity, _ := json.Marshal([3]float32(s.Gravity))
	return model.Session{
		UUID:      s.ID,
		Name:      s.Name,
		StartTime: s.StartTime,
		TickRate:  s.TickRate,
		Gravity:   datatypes.JSON(gravity),
		Tag:       s.Tags,
	}
}

// CoreToActor converts an ActorSpawned event to the actor row.
func CoreToActor(e core.Event) model.Actor {
	return model.Actor{
		ActorID:    uint32(e.Actor),
		Definition: e.Label,
		SpawnTime:  e.Time,
		SpawnTick:  e.Tick,
	}
}

// CoreToEvent converts a core.Event to a GORM model.EventRecord.
func CoreToEvent(e core.Event) model.EventRecord {
	payload, _ := json.Marshal(eventPayload{
		Index:    e.Index,
		Group:    e.Group,
		Affector: uint64(e.Affector),
		Target:   e.Target,
		Label:    e.Label,
		Message:  e.Message,
	})
	return model.EventRecord{
		Tick:    e.Tick,
		Time:    e.Time,
		Kind:    e.Kind.String(),
		ActorID: uint32(e.Actor),
		Payload: datatypes.JSON(payload),
	}
}

// CoreToInputs splits an input record into one row per actor.
func CoreToInputs(r replay.InputRecord) []model.InputRecord {
	rows := make([]model.InputRecord, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		data, _ := json.Marshal(in.Input)
		rows = append(rows, model.InputRecord{
			Tick:    r.Tick,
			Time:    r.Timestamp,
			ActorID: uint32(in.ID),
			Input:   datatypes.JSON(data),
		})
	}
	return rows
}

// CoreToReplayFrame stores a frame in its binary replay encoding.
func CoreToReplayFrame(f replay.Frame) model.ReplayFrame {
	return model.ReplayFrame{
		Tick:    f.Tick,
		Time:    f.Timestamp,
		Actors:  uint16(len(f.Actors)),
		Payload: replay.AppendFrame(nil, &f),
	}
}

// CoreToPerformance converts a monitor reading.
func CoreToPerformance(p core.PerformanceSample) model.PerformanceSample {
	return model.PerformanceSample{
		Time:     p.Time,
		TickRate: p.TickRate,
		Tick:     p.Tick,
		Actors:   uint16(p.Actors),
		Nodes:    uint32(p.Nodes),
		Beams:    uint32(p.Beams),
		QueueLengths: model.QueueLengths{
			Frames:       uint32(p.Queues.Frames),
			Events:       uint32(p.Queues.Events),
			Inputs:       uint32(p.Queues.Inputs),
			ActorStates:  uint32(p.Queues.ActorStates),
			Performances: uint32(p.Queues.Performances),
		},
		LastWriteDurationMs: float32(p.LastWriteDuration.Microseconds()) / 1000,
	}
}

// StateSampler derives map samples from replay frames. It remembers each
// actor's last centroid to compute speed.
type StateSampler struct {
	origin *geo.Origin
	last   map[core.ActorID]centroid
}

type centroid struct {
	pos mgl32.Vec3
	at  time.Time
}

func NewStateSampler(origin *geo.Origin) *StateSampler {
	return &StateSampler{origin: origin, last: make(map[core.ActorID]centroid)}
}

// Sample returns one ActorState per actor block of f. Speed is zero for
// an actor's first sample.
func (s *StateSampler) Sample(f *replay.Frame) ([]model.ActorState, error) {
	out := make([]model.ActorState, 0, len(f.Actors))
	for _, block := range f.Actors {
		if len(block.Positions) == 0 {
			continue
		}
		c := mean(block.Positions)
		var speed float32
		if prev, ok := s.last[block.ID]; ok {
			if dt := f.Timestamp.Sub(prev.at).Seconds(); dt > 0 {
				speed = c.Sub(prev.pos).Len() / float32(dt)
			}
		}
		s.last[block.ID] = centroid{pos: c, at: f.Timestamp}
		pos, err := s.origin.Point3857(c)
		if err != nil {
			return nil, fmt.Errorf("actor %d position: %w", block.ID, err)
		}
		out = append(out, model.ActorState{
			Time:      f.Timestamp,
			Tick:      f.Tick,
			ActorID:   uint32(block.ID),
			Position:  pos,
			Elevation: c.Y(),
			Speed:     speed,
		})
	}
	return out, nil
}

// Forget drops the history of a removed actor.
func (s *StateSampler) Forget(id core.ActorID) {
	delete(s.last, id)
}

func mean(pos []mgl32.Vec3) mgl32.Vec3 {
	var c mgl32.Vec3
	for _, p := range pos {
		c = c.Add(p)
	}
	return c.Mul(1 / float32(len(pos)))
}
