package robot

import "math"

// Geometry describes the drive base, for converting encoder ticks.
type Geometry struct {
	WheelDistance float64 // inches between wheel centres
	WheelDiameter float64 // inches
	TicksPerRev   float64
}

// DefaultGeometry is the TR-Augerbot drive base.
func DefaultGeometry() Geometry {
	return Geometry{
		WheelDistance: 13.0,
		WheelDiameter: 7.65,
		TicksPerRev:   19105.0,
	}
}

// TurnCircumference is the distance a wheel travels in one spin in place.
func (g Geometry) TurnCircumference() float64 {
	return math.Pi * g.WheelDistance
}

// TicksPerInch returns encoder ticks per inch of travel.
func (g Geometry) TicksPerInch() float64 {
	if g.WheelDiameter == 0 {
		return 0
	}
	return g.TicksPerRev / (g.WheelDiameter * math.Pi)
}

// Inches converts encoder ticks to inches travelled.
func (g Geometry) Inches(ticks int64) float64 {
	tpi := g.TicksPerInch()
	if tpi == 0 {
		return 0
	}
	return float64(ticks) / tpi
}
