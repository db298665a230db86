package robot

import (
	"sync"
	"time"

	"github.com/gwillem/augerbot/pkg/netmsg"
)

// Telemetry holds values reported by the microcontroller.
type Telemetry struct {
	Encoders  []int64
	Buttons   []int64
	UpdatedAt time.Time
}

// Snapshot is a consistent copy of the state at one instant.
type Snapshot struct {
	Variant   string
	Commands  map[FieldName]float64
	Telemetry Telemetry
	Failsafe  bool
}

// Value returns a command value, zero when absent.
func (s Snapshot) Value(name FieldName) float64 {
	return s.Commands[name]
}

// ApplyResult summarises one dispatched batch.
type ApplyResult struct {
	Applied  int
	Unknown  []string
	Rejected []error
}

// State is the single shared robot record. Command fields are written by
// Apply and Failsafe; telemetry is written by SetEncoders and SetButtons.
// Every access goes through one mutex.
type State struct {
	variant Variant

	mu        sync.Mutex
	values    []float64
	telemetry Telemetry
	failsafe  bool
}

// NewState returns a zeroed state for variant.
func NewState(variant Variant) *State {
	return &State{
		variant: variant,
		values:  make([]float64, len(variant.Fields)),
	}
}

// Variant returns the field table the state was built with.
func (s *State) Variant() Variant {
	return s.variant
}

// Apply is the command dispatcher. Items are applied in order under a single
// lock, so later items for the same key win and readers never observe half a
// batch. Unknown keys are ignored; known keys with non-numeric values are
// rejected individually. No range checking happens here.
func (s *State) Apply(items []netmsg.Item) ApplyResult {
	var res ApplyResult

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		idx, ok := s.variant.Index(FieldName(it.Key))
		if !ok {
			res.Unknown = append(res.Unknown, it.Key)
			continue
		}
		v, err := it.Float()
		if err != nil {
			res.Rejected = append(res.Rejected, err)
			continue
		}
		s.values[idx] = v
		res.Applied++
	}
	if res.Applied > 0 {
		s.failsafe = false
	}
	return res
}

// Set writes one command field. It reports false for unknown fields.
func (s *State) Set(name FieldName, v float64) bool {
	idx, ok := s.variant.Index(name)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.values[idx] = v
	s.failsafe = false
	s.mu.Unlock()
	return true
}

// Get reads one command field.
func (s *State) Get(name FieldName) (float64, bool) {
	idx, ok := s.variant.Index(name)
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[idx], true
}

// Failsafe forces every command field to zero.
func (s *State) Failsafe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.values {
		s.values[i] = 0
	}
	s.failsafe = true
}

// InFailsafe reports whether the state is still zeroed by the last Failsafe,
// with no command written since.
func (s *State) InFailsafe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failsafe
}

// SetEncoders records encoder ticks reported by the controller.
func (s *State) SetEncoders(ticks []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry.Encoders = append([]int64(nil), ticks...)
	s.telemetry.UpdatedAt = time.Now()
}

// SetButtons records button and switch states reported by the controller.
func (s *State) SetButtons(states []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry.Buttons = append([]int64(nil), states...)
	s.telemetry.UpdatedAt = time.Now()
}

// Snapshot copies the whole record.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmds := make(map[FieldName]float64, len(s.values))
	for i, f := range s.variant.Fields {
		cmds[f.Name] = s.values[i]
	}
	return Snapshot{
		Variant:  s.variant.Name,
		Commands: cmds,
		Telemetry: Telemetry{
			Encoders:  append([]int64(nil), s.telemetry.Encoders...),
			Buttons:   append([]int64(nil), s.telemetry.Buttons...),
			UpdatedAt: s.telemetry.UpdatedAt,
		},
		Failsafe: s.failsafe,
	}
}
