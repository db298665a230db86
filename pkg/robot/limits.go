package robot

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
)

// Constrain clamps n into [lo, hi].
func Constrain[T cmp.Ordered](n, lo, hi T) T {
	return max(min(hi, n), lo)
}

// FieldLimit bounds a single command field.
type FieldLimit struct {
	Min float64 `json:"min" toml:"min"`
	Max float64 `json:"max" toml:"max"`
}

// Clamp bounds v to the limit.
func (l FieldLimit) Clamp(v float64) float64 {
	return Constrain(v, l.Min, l.Max)
}

// Limits holds bounds for command fields, keyed by field name. Fields
// without an entry are sent unbounded.
type Limits map[FieldName]FieldLimit

// DefaultLimits returns bounds matching the controller firmware.
func DefaultLimits() Limits {
	return Limits{
		LeftSpeed:   {Min: -255, Max: 255},
		RightSpeed:  {Min: -255, Max: 255},
		AugerLift:   {Min: float64(Stop), Max: float64(Reverse)},
		AugerSlide:  {Min: float64(Stop), Max: float64(Reverse)},
		AugerDrive:  {Min: float64(Stop), Max: float64(Reverse)},
		BeltLift:    {Min: float64(Stop), Max: float64(Reverse)},
		BeltDrive:   {Min: float64(Stop), Max: float64(Reverse)},
		DirectDrive: {Min: 0, Max: 1},
	}
}

// LoadLimits loads limits from a JSON file.
func LoadLimits(path string) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read limits file: %w", err)
	}

	// Parse into a map with string keys first
	var raw map[string]FieldLimit
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse limits JSON: %w", err)
	}

	limits := make(Limits, len(raw))
	for name, fl := range raw {
		limits[FieldName(name)] = fl
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return limits, nil
}

// Validate rejects inverted ranges.
func (l Limits) Validate() error {
	for name, fl := range l {
		if fl.Min > fl.Max {
			return fmt.Errorf("limit %s: min %v greater than max %v", name, fl.Min, fl.Max)
		}
	}
	return nil
}

// Apply returns a copy of snap with every limited command clamped.
func (l Limits) Apply(snap Snapshot) Snapshot {
	if len(l) == 0 {
		return snap
	}
	cmds := make(map[FieldName]float64, len(snap.Commands))
	for name, v := range snap.Commands {
		if fl, ok := l[name]; ok {
			v = fl.Clamp(v)
		}
		cmds[name] = v
	}
	snap.Commands = cmds
	return snap
}
