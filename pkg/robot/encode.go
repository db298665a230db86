package robot

import (
	"math"

	"github.com/gwillem/augerbot/pkg/serialmsg"
)

// Render converts a stored command value to its wire value.
func (f FieldSpec) Render(v float64) float64 {
	switch f.Kind {
	case KindInt, KindActuator:
		return math.Trunc(v)
	case KindToggle:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return v
	}
}

// Values returns the wire values of spec's fields, in frame order.
func (v Variant) Values(spec FrameSpec, snap Snapshot) []float64 {
	out := make([]float64, 0, len(spec.Fields))
	for _, name := range spec.Fields {
		fs, ok := v.Spec(name)
		if !ok {
			out = append(out, 0)
			continue
		}
		out = append(out, fs.Render(snap.Value(name)))
	}
	return out
}

// Frame builds the outbound frame described by spec.
func (v Variant) Frame(spec FrameSpec, snap Snapshot) serialmsg.Frame {
	return serialmsg.New(spec.Code, v.Values(spec, snap)...)
}

// FullState builds every frame of the variant, including OnChange ones.
func (v Variant) FullState(snap Snapshot) []serialmsg.Frame {
	frames := make([]serialmsg.Frame, 0, len(v.Frames))
	for _, spec := range v.Frames {
		frames = append(frames, v.Frame(spec, snap))
	}
	return frames
}
