// Package robot holds the shared command/telemetry record of a ground robot
// and the per-variant tables that map control-channel keys to it.
package robot

import (
	"fmt"
	"strings"

	"github.com/gwillem/augerbot/pkg/serialmsg"
)

// FieldName identifies a command field, and is also the key used on the
// control channel.
type FieldName string

// Command fields across the supported robots.
const (
	LeftSpeed   FieldName = "left_speed"
	RightSpeed  FieldName = "right_speed"
	AugerLift   FieldName = "auger_lift"
	AugerSlide  FieldName = "auger_slide"
	AugerDrive  FieldName = "auger_drive"
	BeltLift    FieldName = "belt_lift"
	BeltDrive   FieldName = "belt_drive"
	DirectDrive FieldName = "direct_drive"
)

// Kind describes how a field value is rendered on the serial link.
type Kind int

const (
	KindInt      Kind = iota // truncated to an integer
	KindFloat                // sent as is
	KindActuator             // Actuator enum
	KindToggle               // 0 or 1
)

// Actuator is the state of a lift, slide or drive motor.
type Actuator int

const (
	Stop    Actuator = 0
	Forward Actuator = 1 // up, or down the track for the slide
	Reverse Actuator = 2
)

func (a Actuator) String() string {
	switch a {
	case Stop:
		return "STOP"
	case Forward:
		return "FORWARD"
	case Reverse:
		return "REVERSE"
	default:
		return fmt.Sprintf("Actuator(%d)", int(a))
	}
}

// FieldSpec declares one command field.
type FieldSpec struct {
	Name FieldName
	Kind Kind
}

// FrameSpec is one outbound frame built from command fields, in order.
// OnChange frames are only emitted when one of their fields changed since the
// previous emission, or when the send is forced.
type FrameSpec struct {
	Code     int
	Fields   []FieldName
	OnChange bool
}

// TelemetryTarget selects which telemetry slot a response fills.
type TelemetryTarget int

const (
	TargetEncoders TelemetryTarget = iota
	TargetButtons
)

// TelemetrySpec is a request/response exchange polled on its own interval.
type TelemetrySpec struct {
	Name   string
	Code   int
	Target TelemetryTarget
}

// Variant is the field and command-code table of one robot.
type Variant struct {
	Name      string
	Fields    []FieldSpec
	Frames    []FrameSpec
	Telemetry []TelemetrySpec
}

// AugerBot is the TR-Augerbot: skid steer plus auger and belt actuators,
// all sent in one full-state frame.
var AugerBot = Variant{
	Name: "augerbot",
	Fields: []FieldSpec{
		{LeftSpeed, KindInt},
		{RightSpeed, KindInt},
		{AugerLift, KindActuator},
		{AugerSlide, KindActuator},
		{AugerDrive, KindActuator},
		{BeltLift, KindActuator},
		{BeltDrive, KindActuator},
	},
	Frames: []FrameSpec{
		{
			Code:   serialmsg.CodeFullState,
			Fields: []FieldName{LeftSpeed, RightSpeed, AugerLift, AugerSlide, AugerDrive, BeltLift, BeltDrive},
		},
	},
	Telemetry: []TelemetrySpec{
		{Name: "feedback", Code: serialmsg.CodeFeedback, Target: TargetEncoders},
	},
}

// Drivetrain is the encoder-equipped differential drive base.
var Drivetrain = Variant{
	Name: "drivetrain",
	Fields: []FieldSpec{
		{LeftSpeed, KindInt},
		{RightSpeed, KindInt},
		{DirectDrive, KindToggle},
	},
	Frames: []FrameSpec{
		{Code: serialmsg.CodeDrive, Fields: []FieldName{LeftSpeed, RightSpeed}},
		{Code: serialmsg.CodeDirectDrive, Fields: []FieldName{DirectDrive}, OnChange: true},
	},
	Telemetry: []TelemetrySpec{
		{Name: "encoders", Code: serialmsg.CodeEncoders, Target: TargetEncoders},
		{Name: "buttons", Code: serialmsg.CodeButtons, Target: TargetButtons},
	},
}

// Variants returns all known variants.
func Variants() []Variant {
	return []Variant{AugerBot, Drivetrain}
}

// VariantByName looks a variant up by name, case-insensitively.
func VariantByName(name string) (Variant, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, v := range Variants() {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// FieldNames returns the variant's command fields in declaration order.
func (v Variant) FieldNames() []FieldName {
	names := make([]FieldName, len(v.Fields))
	for i, f := range v.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of name in the field table.
func (v Variant) Index(name FieldName) (int, bool) {
	for i, f := range v.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Spec returns the declaration of name.
func (v Variant) Spec(name FieldName) (FieldSpec, bool) {
	i, ok := v.Index(name)
	if !ok {
		return FieldSpec{}, false
	}
	return v.Fields[i], true
}
