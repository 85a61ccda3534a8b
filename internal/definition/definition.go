// Package definition holds actor definitions: immutable records of nodes,
// beams, wheels, engine, commands, hooks and slide-nodes, validated before
// any actor is built from them.
package definition

import (
	"github.com/beamsim/beamsim/internal/driveline"
	"github.com/go-gl/mathgl/mgl32"
)

// Kind tells what sort of vehicle a definition describes.
type Kind string

const (
	KindLand Kind = "land"
	KindBoat Kind = "boat"
	KindAir  Kind = "air"
)

// Definition is one parsed actor. Records carrying a Config name only take
// part when that configuration is selected at spawn.
type Definition struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Configs []string `json:"configs,omitempty"`

	Defaults Defaults `json:"defaults"`
	// DryMass is spread evenly over nodes without an explicit mass.
	DryMass float32 `json:"dryMass,omitempty"`

	Nodes     []Node                `json:"nodes"`
	Beams     []Beam                `json:"beams,omitempty"`
	Shocks    []Shock               `json:"shocks,omitempty"`
	Hydros    []Hydro               `json:"hydros,omitempty"`
	Commands  []Command             `json:"commands,omitempty"`
	Ties      []Tie                 `json:"ties,omitempty"`
	Wheels    []Wheel               `json:"wheels,omitempty"`
	Axles     []Diff                `json:"axles,omitempty"`
	Transfers []Diff                `json:"transfers,omitempty"`
	Brakes    Brakes                `json:"brakes"`
	Engine    *driveline.EngineSpec `json:"engine,omitempty"`
	Hooks     []Hook                `json:"hooks,omitempty"`
	Rails     []Rail                `json:"rails,omitempty"`
	Slides    []SlideNode           `json:"slideNodes,omitempty"`
	// Triangles are contact triangles given by node ids.
	Triangles [][3]int `json:"triangles,omitempty"`
	Aids      Aids     `json:"aids"`

	StartRunning bool `json:"startRunning,omitempty"`
}

// Defaults apply to beams that leave a value at zero.
type Defaults struct {
	NodeMass float32 `json:"nodeMass,omitempty"`
	Spring   float32 `json:"spring,omitempty"`
	Damp     float32 `json:"damp,omitempty"`
	Deform   float32 `json:"deform,omitempty"`
	Strength float32 `json:"strength,omitempty"`
	Plastic  float32 `json:"plastic,omitempty"`
}

type Node struct {
	ID       int        `json:"id"`
	Position mgl32.Vec3 `json:"pos"`
	Mass     float32    `json:"mass,omitempty"`
	Fixed    bool       `json:"fixed,omitempty"`

	NoGroundContact bool `json:"noGroundContact,omitempty"`
	Contacter       bool `json:"contacter,omitempty"`
	// LockGroup restricts which hooks may lock onto the node. Nil means any.
	LockGroup *int `json:"lockGroup,omitempty"`

	Friction    float32 `json:"friction,omitempty"`
	Buoyancy    float32 `json:"buoyancy,omitempty"`
	Volume      float32 `json:"volume,omitempty"`
	SurfaceCoef float32 `json:"surfaceCoef,omitempty"`

	Config string `json:"config,omitempty"`
}

// Beam type and bound names.
const (
	TypeNormal         = "normal"
	TypeHydro          = "hydro"
	TypeVirtual        = "virtual"
	TypeMarked         = "marked"
	TypeInvisible      = "invisible"
	TypeInvisibleHydro = "invisibleHydro"

	BoundShock1  = "shock1"
	BoundShock2  = "shock2"
	BoundShock3  = "shock3"
	BoundSupport = "support"
	BoundRope    = "rope"
)

type Beam struct {
	Nodes    [2]int  `json:"nodes"`
	Spring   float32 `json:"spring,omitempty"`
	Damp     float32 `json:"damp,omitempty"`
	Strength float32 `json:"strength,omitempty"`
	Deform   float32 `json:"deform,omitempty"`
	Plastic  float32 `json:"plastic,omitempty"`
	Type     string  `json:"type,omitempty"`
	Bounded  string  `json:"bounded,omitempty"`
	// Long is the support break extension relative to the rest length.
	Long          float32 `json:"long,omitempty"`
	DetacherGroup int     `json:"detacherGroup,omitempty"`
	Config        string  `json:"config,omitempty"`
}

// Shock is a bounded beam. Short and Long are travel limits relative to
// the rest length.
type Shock struct {
	Nodes    [2]int  `json:"nodes"`
	Kind     string  `json:"kind,omitempty"`
	Spring   float32 `json:"spring"`
	Damp     float32 `json:"damp"`
	Short    float32 `json:"short"`
	Long     float32 `json:"long"`
	Strength float32 `json:"strength,omitempty"`

	SpringIn      float32 `json:"springIn,omitempty"`
	DampIn        float32 `json:"dampIn,omitempty"`
	ProgSpringIn  float32 `json:"progSpringIn,omitempty"`
	ProgDampIn    float32 `json:"progDampIn,omitempty"`
	SpringOut     float32 `json:"springOut,omitempty"`
	DampOut       float32 `json:"dampOut,omitempty"`
	ProgSpringOut float32 `json:"progSpringOut,omitempty"`
	ProgDampOut   float32 `json:"progDampOut,omitempty"`

	SplitVelIn  float32 `json:"splitVelIn,omitempty"`
	SlowDampIn  float32 `json:"slowDampIn,omitempty"`
	FastDampIn  float32 `json:"fastDampIn,omitempty"`
	SplitVelOut float32 `json:"splitVelOut,omitempty"`
	SlowDampOut float32 `json:"slowDampOut,omitempty"`
	FastDampOut float32 `json:"fastDampOut,omitempty"`

	BoundSpring float32 `json:"boundSpring,omitempty"`
	BoundDamp   float32 `json:"boundDamp,omitempty"`

	DetacherGroup int    `json:"detacherGroup,omitempty"`
	Config        string `json:"config,omitempty"`
}

// Hydro is a steering beam whose length follows the steering input.
type Hydro struct {
	Nodes        [2]int  `json:"nodes"`
	Ratio        float32 `json:"ratio"`
	Spring       float32 `json:"spring,omitempty"`
	Damp         float32 `json:"damp,omitempty"`
	Strength     float32 `json:"strength,omitempty"`
	SpeedCoupled bool    `json:"speedCoupled,omitempty"`
	Invisible    bool    `json:"invisible,omitempty"`
	Config       string  `json:"config,omitempty"`
}

// Command is a beam driven by up to two input keys. Short and Long bound
// the rest length relative to its spawn length. A zero key is unbound.
type Command struct {
	Nodes       [2]int  `json:"nodes"`
	Spring      float32 `json:"spring,omitempty"`
	Damp        float32 `json:"damp,omitempty"`
	Strength    float32 `json:"strength,omitempty"`
	Short       float32 `json:"short"`
	Long        float32 `json:"long"`
	ContractKey int     `json:"contractKey,omitempty"`
	ExtendKey   int     `json:"extendKey,omitempty"`
	// Speed is the movement rate in spawn lengths per second.
	Speed       float32 `json:"speed,omitempty"`
	NeedsEngine bool    `json:"needsEngine,omitempty"`
	Coupling    float32 `json:"coupling,omitempty"`
	StartRate   float32 `json:"startRate,omitempty"`
	StopRate    float32 `json:"stopRate,omitempty"`
	Description string  `json:"description,omitempty"`
	Config      string  `json:"config,omitempty"`
}

// Tie is a beam that tightens on demand until it reaches Short or MaxStress.
type Tie struct {
	Nodes     [2]int  `json:"nodes"`
	Spring    float32 `json:"spring,omitempty"`
	Damp      float32 `json:"damp,omitempty"`
	Short     float32 `json:"short"`
	Speed     float32 `json:"speed,omitempty"`
	MaxStress float32 `json:"maxStress,omitempty"`
	Config    string  `json:"config,omitempty"`
}

// Wheel propulsion and braking names.
const (
	PropNone     = "none"
	PropForward  = "forward"
	PropReversed = "reversed"

	BrakeNone     = "none"
	BrakeFootHand = "footHand"
	BrakeFootOnly = "footOnly"
)

type Wheel struct {
	// Nodes are the tyre nodes, alternating between the two axis sides.
	Nodes      []int   `json:"nodes"`
	Axis       [2]int  `json:"axis"`
	Arm        *int    `json:"arm,omitempty"`
	Radius     float32 `json:"radius"`
	Mass       float32 `json:"mass,omitempty"`
	Propulsion string  `json:"propulsion,omitempty"`
	Braking    string  `json:"braking,omitempty"`
}

// Diff couples two wheels (axles) or two axles (transfers). Types are
// "open", "locked", "viscous" or "split"; the first is active.
type Diff struct {
	Pair  [2]int   `json:"pair"`
	Types []string `json:"types,omitempty"`
}

type Brakes struct {
	Force     float32 `json:"force"`
	Handbrake float32 `json:"handbrake"`
}

type Hook struct {
	Node      int     `json:"node"`
	Group     *int    `json:"group,omitempty"`
	LockGroup *int    `json:"lockGroup,omitempty"`
	LockRange float32 `json:"lockRange,omitempty"`
	LockSpeed float32 `json:"lockSpeed,omitempty"`
	MaxForce  float32 `json:"maxForce,omitempty"`
	Timer     float32 `json:"timer,omitempty"`
	Spring    float32 `json:"spring,omitempty"`
	Damp      float32 `json:"damp,omitempty"`
	MinLength float32 `json:"minLength,omitempty"`
	AutoLock  bool    `json:"autoLock,omitempty"`
	NoDisable bool    `json:"noDisable,omitempty"`
	SelfLock  bool    `json:"selfLock,omitempty"`
}

// Rail is a polyline through node ids. Consecutive nodes must be joined by
// a beam.
type Rail struct {
	ID     int   `json:"id"`
	Nodes  []int `json:"nodes"`
	Looped bool  `json:"looped,omitempty"`
}

type SlideNode struct {
	Node            int     `json:"node"`
	Rails           []int   `json:"rails"`
	Spring          float32 `json:"spring,omitempty"`
	Damp            float32 `json:"damp,omitempty"`
	Tolerance       float32 `json:"tolerance,omitempty"`
	AttachRate      float32 `json:"attachRate,omitempty"`
	AttachThreshold float32 `json:"attachThreshold,omitempty"`
	BreakForce      float32 `json:"breakForce,omitempty"`
}

// Aids configures the driving aids. All start disabled unless Enabled.
type Aids struct {
	ABS          Pulsed  `json:"abs"`
	TC           Pulsed  `json:"tc"`
	CruiseLower  float32 `json:"cruiseLowerLimit,omitempty"`
	CruiseBrake  bool    `json:"cruiseCanBrake,omitempty"`
	Limit        float32 `json:"speedLimit,omitempty"`
	AntiRollback bool    `json:"antiRollback,omitempty"`
}

type Pulsed struct {
	Enabled   bool    `json:"enabled,omitempty"`
	Ratio     float32 `json:"ratio,omitempty"`
	PulseHz   float32 `json:"pulseHz,omitempty"`
	MinSpeed  float32 `json:"minSpeed,omitempty"`
	WheelSlip float32 `json:"wheelSlip,omitempty"`
	Fade      float32 `json:"fade,omitempty"`
}

// NodeIndex maps node ids to array indices.
func (d *Definition) NodeIndex() map[int]int {
	idx := make(map[int]int, len(d.Nodes))
	for i, n := range d.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// HasConfig reports whether name is a declared configuration. The empty
// name always is.
func (d *Definition) HasConfig(name string) bool {
	if name == "" {
		return true
	}
	for _, c := range d.Configs {
		if c == name {
			return true
		}
	}
	return false
}
