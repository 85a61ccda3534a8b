package softbody

import "math"

// Physical defaults applied when a definition leaves a value unset.
const (
	DefaultSpring         = 9e6
	DefaultDamp           = 0
	DefaultDrag           = 0.05
	DefaultWaterDrag      = 10
	DefaultBuoyancy       = 10000
	DefaultCollisionRange = 0.02
	DefaultPlasticCoef    = 0.5
	DefaultStrength       = 1e6
	DefaultDeform         = 4e5
	DefaultNodeMass       = 10
	DefaultForceSentinel  = 1e12

	// MinBeamLength bounds plastic shortening.
	MinBeamLength = 0.1

	// SleepVelocity is the speed below which a node counts as resting.
	SleepVelocity = 0.01

	// RecenterInterval is the number of ticks between origin re-centering.
	RecenterInterval = 256

	// smoothing places render positions between the previous and the current
	// tick, so they never lag by more than one tick.
	smoothing = 0.5

	// DrippingTime is how long a node stays dripping after leaving water.
	DrippingTime = 5
)

var inf = float32(math.Inf(1))

// Inf is +Inf as float32.
func Inf() float32 { return inf }
