package robot

import (
	"testing"
)

func TestVariant_FullStateAugerBot(t *testing.T) {
	st := NewState(AugerBot)
	st.Set(LeftSpeed, -40.7)
	st.Set(RightSpeed, 25)
	st.Set(AugerLift, float64(Forward))
	st.Set(BeltDrive, float64(Reverse))

	frames := AugerBot.FullState(st.Snapshot())
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if got, want := frames[0].String(), "<1,-40,25,1,0,0,0,2>"; got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
}

func TestVariant_FullStateDrivetrain(t *testing.T) {
	st := NewState(Drivetrain)
	st.Set(LeftSpeed, -40)
	st.Set(RightSpeed, 25)
	st.Set(DirectDrive, 5)

	frames := Drivetrain.FullState(st.Snapshot())
	want := []string{"<10,-40,25>", "<92,1>"}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.String() != want[i] {
			t.Errorf("frame %d = %q, want %q", i, f.String(), want[i])
		}
	}
}

func TestVariantByName(t *testing.T) {
	for _, name := range []string{"augerbot", "AugerBot", " drivetrain "} {
		if _, ok := VariantByName(name); !ok {
			t.Errorf("VariantByName(%q) not found", name)
		}
	}
	if _, ok := VariantByName("p3dx"); ok {
		t.Error("unknown variant should not be found")
	}
}

func TestActuatorString(t *testing.T) {
	tests := map[Actuator]string{Stop: "STOP", Forward: "FORWARD", Reverse: "REVERSE", 9: "Actuator(9)"}
	for a, want := range tests {
		if a.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(a), a.String(), want)
		}
	}
}
