package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Actor{},
	&ActorState{},
	&ReplayFrame{},
	&EventRecord{},
	&InputRecord{},
	&PerformanceSample{},
}

// DatabaseModelsSQLite is the schema of SQLite dumps.
var DatabaseModelsSQLite = []interface{}{
	&Session{},
	&Actor{},
	&ActorState{},
	&ReplayFrame{},
	&EventRecord{},
	&InputRecord{},
	&PerformanceSample{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// PerformanceSample is one monitor reading of the simulation loop.
type PerformanceSample struct {
	Time      time.Time `json:"time" gorm:"index:idx_perf_time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_perf_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	// TickRate is the achieved rate over the sample window, in Hz.
	TickRate            float32      `json:"tickRate"`
	Tick                uint64       `json:"tick"`
	Actors              uint16       `json:"actors"`
	Nodes               uint32       `json:"nodes"`
	Beams               uint32       `json:"beams"`
	QueueLengths        QueueLengths `json:"queueLengths" gorm:"embedded;embeddedPrefix:queue_"`
	LastWriteDurationMs float32      `json:"lastWriteDurationMs"`
}

func (*PerformanceSample) TableName() string {
	return "performance_samples"
}

// QueueLengths are the backend write queue depths at sample time.
type QueueLengths struct {
	Frames       uint32 `json:"frames"`
	Events       uint32 `json:"events"`
	Inputs       uint32 `json:"inputs"`
	ActorStates  uint32 `json:"actorStates"`
	Performances uint32 `json:"performances"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one simulation run.
type Session struct {
	gorm.Model
	UUID      string         `json:"uuid" gorm:"size:36;uniqueIndex"`
	Name      string         `json:"name" gorm:"size:200"`
	StartTime time.Time      `json:"startTime" gorm:"index:idx_session_start"`
	EndTime   *time.Time     `json:"endTime"`
	TickRate  float32        `json:"tickRate"`
	Gravity   datatypes.JSON `json:"gravity"`
	Tag       string         `json:"tag" gorm:"size:127"`

	Actors []Actor `json:"-"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Actor is a spawned vehicle or object. Composite primary key
// (SessionID, ActorID), ActorID being the world-assigned id.
type Actor struct {
	SessionID  uint      `json:"sessionId" gorm:"primaryKey;autoIncrement:false"`
	ActorID    uint32    `json:"actorId" gorm:"primaryKey;autoIncrement:false"`
	Session    Session   `json:"-" gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Definition string    `json:"definition" gorm:"size:127"`
	SpawnTime  time.Time `json:"spawnTime"`
	SpawnTick  uint64    `json:"spawnTick"`
	RemoveTick *uint64   `json:"removeTick"`
}

func (*Actor) TableName() string {
	return "actors"
}

// ActorState is a coarse per-actor sample for map views: the node
// centroid in EPSG:3857 with its height, and the centroid speed.
type ActorState struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_actorstate_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64    `json:"tick" gorm:"index:idx_actorstate_tick"`
	ActorID   uint32    `json:"actorId" gorm:"index:idx_actorstate_actor_id"`

	Position  geom.Point `json:"position" gorm:"type:geometry"`
	Elevation float32    `json:"elevation"`
	Speed     float32    `json:"speed"`
}

func (*ActorState) TableName() string {
	return "actor_states"
}

// ReplayFrame stores one encoded replay record.
type ReplayFrame struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_frame_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64    `json:"tick" gorm:"index:idx_frame_tick"`
	Time      time.Time `json:"time"`
	Actors    uint16    `json:"actors"`
	Payload   []byte    `json:"-"`
}

func (*ReplayFrame) TableName() string {
	return "replay_frames"
}

// EventRecord is a persisted core event. Payload holds the kind-specific
// fields as JSON.
type EventRecord struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_event_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
	Kind      string         `json:"kind" gorm:"size:32;index:idx_event_kind"`
	ActorID   uint32         `json:"actorId"`
	Payload   datatypes.JSON `json:"payload"`
}

func (*EventRecord) TableName() string {
	return "events"
}

// InputRecord is one actor's input snapshot at a tick.
type InputRecord struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_input_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
	ActorID   uint32         `json:"actorId"`
	Input     datatypes.JSON `json:"input"`
}

func (*InputRecord) TableName() string {
	return "inputs"
}
