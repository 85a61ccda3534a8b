// Package driveline models the engine, gearbox, differentials, wheels and
// brakes of a vehicle.
package driveline

import "sort"

// CurvePoint is one sample of a torque curve.
type CurvePoint struct {
	RPM    float32 `json:"rpm"`
	Factor float32 `json:"factor"`
}

// TorqueCurve maps engine rpm to a torque factor by linear interpolation.
// The zero value is flat 1.0.
type TorqueCurve struct {
	Points []CurvePoint `json:"points"`
}

// NewTorqueCurve returns a curve over points sorted by rpm.
func NewTorqueCurve(points ...CurvePoint) TorqueCurve {
	p := append([]CurvePoint(nil), points...)
	sort.Slice(p, func(i, j int) bool { return p[i].RPM < p[j].RPM })
	return TorqueCurve{Points: p}
}

// At returns the factor at rpm, clamped to the first and last sample.
func (c TorqueCurve) At(rpm float32) float32 {
	p := c.Points
	switch {
	case len(p) == 0:
		return 1
	case rpm <= p[0].RPM:
		return p[0].Factor
	case rpm >= p[len(p)-1].RPM:
		return p[len(p)-1].Factor
	}
	i := sort.Search(len(p), func(i int) bool { return p[i].RPM >= rpm })
	a, b := p[i-1], p[i]
	if b.RPM == a.RPM {
		return b.Factor
	}
	t := (rpm - a.RPM) / (b.RPM - a.RPM)
	return a.Factor + t*(b.Factor-a.Factor)
}
