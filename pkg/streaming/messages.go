// Package streaming defines the JSON envelopes a recording host streams to
// remote viewers over WebSocket.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeFrame        = "frame"
	TypeEvent        = "event"
	TypeInput        = "input"
	TypePerformance  = "performance"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a session. It is replayed after a
// reconnect.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// EndSessionPayload closes a session.
type EndSessionPayload struct {
	SessionID string    `json:"sessionId"`
	EndTime   time.Time `json:"endTime"`
}

// FramePayload carries one replay frame.
type FramePayload struct {
	Tick   uint64       `json:"tick"`
	Time   time.Time    `json:"time"`
	Actors []ActorFrame `json:"actors"`
}

// ActorFrame is the node positions of one actor.
type ActorFrame struct {
	ID        core.ActorID `json:"id"`
	Positions []mgl32.Vec3 `json:"positions"`
}

// InputPayload carries the inputs applied at one tick.
type InputPayload struct {
	Tick   uint64       `json:"tick"`
	Time   time.Time    `json:"time"`
	Inputs []ActorInput `json:"inputs"`
}

type ActorInput struct {
	ID    core.ActorID       `json:"id"`
	Input core.InputSnapshot `json:"input"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
