package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/halfstep/internal/config"
	"github.com/cjeanneret/halfstep/internal/debug"
	"github.com/cjeanneret/halfstep/internal/hw/clock"
	"github.com/cjeanneret/halfstep/internal/hw/gpio"
	"github.com/cjeanneret/halfstep/internal/hw/stepper"
	"github.com/cjeanneret/halfstep/internal/hw/trigger"
	"github.com/cjeanneret/halfstep/internal/logic/motion"
	"github.com/cjeanneret/halfstep/internal/logic/program"
	"github.com/cjeanneret/halfstep/internal/web"
)

var (
	errNoHoming  = errors.New("no homing pin configured")
	errNoProgram = errors.New("no program configured")
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: config.DefaultWebPort}
	var opts options
	flag.Var(webPort, "web", "start web server on port; -web= for the configured default, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	flag.Var(&opts.degrees, "degrees", "turn to this absolute angle in degrees")
	flag.Var(&opts.steps, "steps", "turn by this many full steps")
	flag.StringVar(&opts.direction, "direction", "", "right or left (default: motor.direction from config)")
	flag.IntVar(&opts.velocity, "velocity", 0, "override velocity in half-steps per second")
	flag.BoolVar(&opts.home, "home", false, "home on the configured pin before moving")
	flag.BoolVar(&opts.program, "program", false, "run the configured waypoint program")
	flag.BoolVar(&opts.jog, "jog", false, "interactive jog mode (arrow keys)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := validateOptions(opts); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}
	if opts.jog && webPort.port() > 0 {
		log.Fatalf("invalid flags: -jog and -web are mutually exclusive")
	}

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if webPort.fromDefault {
		webPort.val = cfg.Defaults.WebPort
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	if opts.jog {
		debug.SetOutput(io.Discard)
	}
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Motor config", cfg.Motor)

	debug.Step(1, "Initializing GPIO driver")
	debug.Value("GPIO backend", cfg.GPIO.Backend)
	gpioDriver, err := gpio.NewDriver(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing stepper motor")
	a, err := newApp(cfg, gpioDriver, clock.System{})
	if err != nil {
		log.Fatalf("init motor failed: %v", err)
	}

	if err := a.runOnce(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}

	switch {
	case opts.jog:
		if err := runJog(a.ctrl); err != nil {
			log.Fatalf("jog: %v", err)
		}
	case webPort.port() > 0:
		if err := a.serve(ctx, fmt.Sprintf(":%d", webPort.port())); err != nil {
			log.Fatalf("web server: %v", err)
		}
	default:
		st := a.ctrl.State()
		fmt.Printf("%.3f° %s, phase %s\n", st.Degrees, st.Direction, st.Phase)
	}
}

// app ties the configured motor to its controller and program.
type app struct {
	cfg     *config.Config
	ctrl    *motion.Controller
	runner  *program.Runner
	program program.Program
	summary web.MotorSummary
}

func newApp(cfg *config.Config, driver gpio.Driver, clk clock.Clock) (*app, error) {
	pins := cfg.MotorPins()
	seq, err := stepper.NewSequencer(driver, clk, stepper.Config{
		StepsPerRev: cfg.Motor.StepsPerRev,
		PinA:        pins[0],
		PinB:        pins[1],
		PinC:        pins[2],
		PinD:        pins[3],
		Velocity:    cfg.Motor.Velocity,
	})
	if err != nil {
		return nil, err
	}
	dir, err := stepper.ParseDirection(cfg.Motor.Direction)
	if err != nil {
		return nil, err
	}
	seq.SetDirection(dir)

	prog, err := program.FromConfig(cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	ctrl := motion.NewController(seq)
	runner := program.NewRunner(ctrl, clk)
	if cfg.HasTrigger() {
		tc := cfg.Program.Trigger
		trg, err := trigger.NewGPIO(driver, clk, trigger.Config{
			Pin:       tc.Pin,
			ActiveLow: tc.ActiveLow,
			Settle:    tc.Settle(),
			Hold:      tc.Hold(),
		})
		if err != nil {
			return nil, err
		}
		runner.SetTrigger(trg)
	}

	return &app{
		cfg:     cfg,
		ctrl:    ctrl,
		runner:  runner,
		program: prog,
		summary: web.MotorSummary{
			StepsPerRev:     cfg.Motor.StepsPerRev,
			HalfStepsPerRev: seq.HalfStepsPerRev(),
			DegreesPerStep:  seq.DegreesPerStep(),
			Pins:            pins,
			HomePin:         cfg.Homing.Pin,
			Waypoints:       len(prog.Waypoints),
			Backend:         cfg.GPIO.Backend,
		},
	}, nil
}

// runOnce performs the one-shot operations in order: home, velocity, move, program.
func (a *app) runOnce(ctx context.Context, opts options) error {
	if opts.home {
		debug.Section("Homing")
		if err := a.home(ctx); err != nil {
			return fmt.Errorf("homing failed: %w", err)
		}
	}

	if opts.velocity > 0 {
		debug.Value("Velocity override", opts.velocity)
		if err := a.ctrl.SetVelocity(opts.velocity); err != nil {
			return fmt.Errorf("set velocity: %w", err)
		}
	}

	if req, ok := opts.moveRequest(a.cfg.Motor.Direction); ok {
		m, err := web.ValidateMove(req)
		if err != nil {
			return fmt.Errorf("invalid move: %w", err)
		}
		if err := a.move(ctx, m); err != nil {
			return fmt.Errorf("move failed: %w", err)
		}
	}

	if opts.program {
		if err := a.runProgram(ctx); err != nil {
			return fmt.Errorf("program failed: %w", err)
		}
	}
	return nil
}

func (a *app) home(ctx context.Context) error {
	if !a.cfg.HasHoming() {
		return errNoHoming
	}
	return a.ctrl.Home(ctx, a.cfg.Homing.Pin, a.cfg.HomeTimeout())
}

func (a *app) move(_ context.Context, m web.Move) error {
	if m.Velocity > 0 {
		if err := a.ctrl.SetVelocity(m.Velocity); err != nil {
			return err
		}
	}
	if m.ByDegrees {
		return a.ctrl.MoveTo(m.Degrees, m.Direction)
	}
	return a.ctrl.Rotate(m.Steps, m.Direction)
}

func (a *app) runProgram(ctx context.Context) error {
	if len(a.program.Waypoints) == 0 {
		return errNoProgram
	}
	return a.runner.Run(ctx, a.program)
}

// actions exposes the app over HTTP; homing and program are only offered when configured.
func (a *app) actions() web.Actions {
	act := web.Actions{
		Move:  a.move,
		State: a.ctrl.State,
	}
	if a.cfg.HasHoming() {
		act.Home = a.home
	}
	if a.cfg.HasProgram() {
		act.Program = a.runProgram
	}
	return act
}

func (a *app) serve(ctx context.Context, addr string) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.Logger().AddHook(web.NewBroadcastHook(broadcaster))
	a.ctrl.OnChange(func(s motion.State) {
		broadcaster.BroadcastState(s)
	})

	srv, err := web.NewServer(addr, broadcaster, a.actions(), a.summary)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// options holds the one-shot CLI flags.
type options struct {
	degrees   optionalFloat
	steps     optionalInt
	direction string
	velocity  int
	home      bool
	program   bool
	jog       bool
}

// validateOptions checks flag combinations; ranges are checked by web.ValidateMove.
func validateOptions(o options) error {
	if o.degrees.set && o.steps.set {
		return errors.New("-degrees and -steps are mutually exclusive")
	}
	if o.velocity < 0 {
		return fmt.Errorf("-velocity must be >= 0, got %d", o.velocity)
	}
	if o.direction != "" {
		if _, err := stepper.ParseDirection(o.direction); err != nil {
			return err
		}
	}
	return nil
}

// moveRequest converts the move flags, filling the direction from defaultDir.
// It reports false when no move was requested.
func (o options) moveRequest(defaultDir string) (web.MoveRequest, bool) {
	req := web.MoveRequest{Direction: o.direction}
	if req.Direction == "" {
		req.Direction = defaultDir
	}
	switch {
	case o.degrees.set:
		d := o.degrees.val
		req.Degrees = &d
	case o.steps.set:
		s := o.steps.val
		req.Steps = &s
	default:
		return req, false
	}
	return req, true
}

// optionalFloat is a float flag that remembers whether it was given.
type optionalFloat struct {
	val float64
	set bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.val, 'g', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.val, f.set = v, true
	return nil
}

// optionalInt is an int flag that remembers whether it was given.
type optionalInt struct {
	val int
	set bool
}

func (i *optionalInt) String() string {
	if !i.set {
		return ""
	}
	return strconv.Itoa(i.val)
}

func (i *optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	i.val, i.set = v, true
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= → default port, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
	fromDefault bool // -web= was given; the config may override defaultPort
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		w.fromDefault = true
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	w.fromDefault = false
	return nil
}

func (w *webPortFlag) port() int { return w.val }
