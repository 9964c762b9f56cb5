package main

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/halfstep/internal/config"
	"github.com/cjeanneret/halfstep/internal/hw/clock"
	"github.com/cjeanneret/halfstep/internal/hw/gpio"
	"github.com/cjeanneret/halfstep/internal/web"
)

const testYAML = `
motor:
  pin_a: 17
  pin_b: 18
  pin_c: 27
  pin_d: 22
  steps_per_rev: 200
homing:
  pin: 23
program:
  waypoints:
    - degrees: 90
      direction: left
      dwell_ms: 100
    - degrees: 0
      direction: left
`

func newTestApp(t *testing.T, yaml string) (*app, *gpio.MockDriver, *clock.Fake) {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	drv := gpio.NewMockDriver()
	clk := &clock.Fake{}
	a, err := newApp(cfg, drv, clk)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a, drv, clk
}

// ---------- validateOptions ----------

func TestValidateOptions_Valid(t *testing.T) {
	cases := []struct {
		name string
		o    options
	}{
		{"empty", options{}},
		{"degrees", options{degrees: optionalFloat{val: 90, set: true}, direction: "left"}},
		{"steps", options{steps: optionalInt{val: 10, set: true}}},
		{"velocity", options{velocity: 100}},
		{"everything_else", options{home: true, program: true, jog: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateOptions(tc.o); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateOptions_Invalid(t *testing.T) {
	cases := []struct {
		name string
		o    options
	}{
		{"degrees_and_steps", options{degrees: optionalFloat{val: 1, set: true}, steps: optionalInt{val: 1, set: true}}},
		{"negative_velocity", options{velocity: -1}},
		{"bad_direction", options{direction: "up"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateOptions(tc.o); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- moveRequest ----------

func TestMoveRequest_None(t *testing.T) {
	if _, ok := (options{direction: "left"}).moveRequest("right"); ok {
		t.Error("no move flag given, expected ok=false")
	}
}

func TestMoveRequest_DefaultDirection(t *testing.T) {
	req, ok := (options{steps: optionalInt{val: 5, set: true}}).moveRequest("left")
	if !ok {
		t.Fatal("expected a move request")
	}
	if req.Direction != "left" {
		t.Errorf("direction = %q, want left", req.Direction)
	}
	if req.Steps == nil || *req.Steps != 5 || req.Degrees != nil {
		t.Errorf("request = %+v", req)
	}
}

func TestMoveRequest_NaNRejectedByValidateMove(t *testing.T) {
	req, _ := (options{degrees: optionalFloat{val: math.NaN(), set: true}}).moveRequest("right")
	if _, err := web.ValidateMove(req); err == nil {
		t.Error("NaN degrees should be rejected")
	}
}

// ---------- optional flags ----------

func TestOptionalFloat(t *testing.T) {
	var f optionalFloat
	if f.String() != "" {
		t.Errorf("unset String() = %q", f.String())
	}
	if err := f.Set("-12.5"); err != nil {
		t.Fatal(err)
	}
	if !f.set || f.val != -12.5 || f.String() != "-12.5" {
		t.Errorf("after Set: %+v %q", f, f.String())
	}
	if err := f.Set("abc"); err == nil {
		t.Error("Set(abc) should fail")
	}
}

func TestOptionalInt(t *testing.T) {
	var i optionalInt
	if err := i.Set("0"); err != nil {
		t.Fatal(err)
	}
	if !i.set || i.val != 0 || i.String() != "0" {
		t.Errorf("after Set(0): %+v", i)
	}
	if err := i.Set("1.5"); err == nil {
		t.Error("Set(1.5) should fail")
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
	if !w.fromDefault {
		t.Error("fromDefault should be set for -web=")
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
			if w.fromDefault {
				t.Error("explicit port must not be marked as default")
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- app ----------

func TestNewApp_ConfiguredDirectionAndVelocity(t *testing.T) {
	yaml := strings.Replace(testYAML, "steps_per_rev: 200\n", "steps_per_rev: 200\n  velocity: 40\n  direction: left\n", 1)
	a, drv, _ := newTestApp(t, yaml)
	st := a.ctrl.State()
	if st.Direction != "left" || st.Velocity != 40 {
		t.Errorf("state = %+v", st)
	}
	for _, pin := range []int{17, 18, 27, 22} {
		if mode, ok := drv.Mode(pin); !ok || mode != gpio.Output {
			t.Errorf("pin %d mode = %v (set up: %v), want output", pin, mode, ok)
		}
	}
	if a.summary.HalfStepsPerRev != 400 || a.summary.DegreesPerStep != 0.9 || a.summary.Waypoints != 2 {
		t.Errorf("summary = %+v", a.summary)
	}
}

func TestRunOnce_Nothing(t *testing.T) {
	a, _, clk := newTestApp(t, testYAML)
	if err := a.runOnce(context.Background(), options{}); err != nil {
		t.Fatal(err)
	}
	if clk.Calls() != 0 {
		t.Errorf("no operation requested, %d half-steps issued", clk.Calls())
	}
}

func TestRunOnce_VelocityThenMove(t *testing.T) {
	a, _, clk := newTestApp(t, testYAML)
	opts := options{steps: optionalInt{val: 100, set: true}, velocity: 100}
	if err := a.runOnce(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if clk.Calls() != 201 {
		t.Errorf("half-steps = %d, want 201", clk.Calls())
	}
	if clk.Last() != 10*time.Millisecond {
		t.Errorf("pause = %v, want 10ms (velocity applied before the move)", clk.Last())
	}
	if d := a.ctrl.State().Degrees; math.Abs(d-270) > 1e-9 {
		t.Errorf("degrees = %v, want 270", d)
	}
}

func TestRunOnce_HomeFirst(t *testing.T) {
	a, drv, clk := newTestApp(t, testYAML)
	drv.SetInput(23, gpio.High)
	opts := options{home: true, degrees: optionalFloat{val: 90, set: true}, direction: "left"}
	if err := a.runOnce(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	st := a.ctrl.State()
	if !st.Homed {
		t.Error("expected homed")
	}
	if math.Abs(st.Degrees-90) > 1e-9 {
		t.Errorf("degrees = %v, want 90", st.Degrees)
	}
	if clk.Calls() != 201 {
		t.Errorf("half-steps = %d, want 201 (homing took none)", clk.Calls())
	}
}

func TestRunOnce_Program(t *testing.T) {
	a, _, clk := newTestApp(t, testYAML)
	if err := a.runOnce(context.Background(), options{program: true}); err != nil {
		t.Fatal(err)
	}
	// 100 steps to 90°, 300 steps back to 0°, plus the 100ms dwell.
	if clk.Calls() != 201+601+1 {
		t.Errorf("sleeps = %d, want %d", clk.Calls(), 201+601+1)
	}
	if d := a.ctrl.State().Degrees; math.Abs(d) > 1e-9 {
		t.Errorf("degrees = %v, want 0", d)
	}
}

func TestRunOnce_NotConfigured(t *testing.T) {
	bare := "motor:\n  pin_a: 1\n  pin_b: 2\n  pin_c: 3\n  pin_d: 4\n  steps_per_rev: 200\n"
	a, _, _ := newTestApp(t, bare)
	if err := a.runOnce(context.Background(), options{home: true}); !errors.Is(err, errNoHoming) {
		t.Errorf("home: err = %v, want errNoHoming", err)
	}
	if err := a.runOnce(context.Background(), options{program: true}); !errors.Is(err, errNoProgram) {
		t.Errorf("program: err = %v, want errNoProgram", err)
	}

	act := a.actions()
	if act.Home != nil || act.Program != nil {
		t.Error("unconfigured home/program must not be exposed over HTTP")
	}
	if act.Move == nil || act.State == nil {
		t.Error("move and state are always exposed")
	}
}

func TestActions_Configured(t *testing.T) {
	a, _, _ := newTestApp(t, testYAML)
	act := a.actions()
	if act.Home == nil || act.Program == nil {
		t.Error("configured home/program should be exposed")
	}
}

// TestMove_CLIAndWebProduceSameResult checks that flags and the HTTP body go
// through the same validation and end at the same angle.
func TestMove_CLIAndWebProduceSameResult(t *testing.T) {
	cli, _, _ := newTestApp(t, testYAML)
	opts := options{degrees: optionalFloat{val: -90, set: true}, direction: "left"}
	if err := cli.runOnce(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	srv, _, _ := newTestApp(t, testYAML)
	deg := -90.0
	m, err := web.ValidateMove(web.MoveRequest{Degrees: &deg, Direction: "left"})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.actions().Move(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	if cli.ctrl.State() != srv.ctrl.State() {
		t.Errorf("CLI state %+v != web state %+v", cli.ctrl.State(), srv.ctrl.State())
	}
	if d := cli.ctrl.State().Degrees; math.Abs(d-270) > 1e-9 {
		t.Errorf("degrees = %v, want 270", d)
	}
}

func TestNewApp_TriggerWired(t *testing.T) {
	yaml := testYAML + "  trigger:\n    pin: 24\n    hold_ms: 50\n"
	a, drv, clk := newTestApp(t, yaml)
	if mode, ok := drv.Mode(24); !ok || mode != gpio.Output {
		t.Fatalf("trigger pin not set up as output")
	}
	if err := a.runOnce(context.Background(), options{program: true}); err != nil {
		t.Fatal(err)
	}
	// Two pulses of 50ms each on top of the moves and the 100ms dwell.
	if got, want := clk.Calls(), 201+601+1+2; got != want {
		t.Errorf("sleeps = %d, want %d", got, want)
	}
}
