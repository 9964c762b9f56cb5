package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/halfstep/internal/debug"
	"github.com/cjeanneret/halfstep/internal/hw/stepper"
	"github.com/cjeanneret/halfstep/internal/logic/motion"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// MoveRequest is the JSON body of POST /move. Exactly one of Degrees or Steps is set.
type MoveRequest struct {
	Degrees   *float64 `json:"degrees,omitempty"`
	Steps     *int     `json:"steps,omitempty"`
	Direction string   `json:"direction"`
	Velocity  int      `json:"velocity,omitempty"` // 0 keeps the current pacing
}

// Move is a validated MoveRequest.
type Move struct {
	ByDegrees bool
	Degrees   float64
	Steps     int
	Direction stepper.Direction
	Velocity  int
}

// ValidateMove checks a MoveRequest and converts it to a Move.
func ValidateMove(req MoveRequest) (Move, error) {
	var m Move
	switch {
	case req.Degrees != nil && req.Steps != nil:
		return m, errors.New("set either degrees or steps, not both")
	case req.Degrees != nil:
		d := *req.Degrees
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return m, errors.New("degrees must be a finite number")
		}
		m.ByDegrees = true
		m.Degrees = d
	case req.Steps != nil:
		if *req.Steps < 0 {
			return m, fmt.Errorf("steps must be >= 0, got %d", *req.Steps)
		}
		if *req.Steps > stepper.MaxSteps {
			return m, fmt.Errorf("steps must be <= %d, got %d", stepper.MaxSteps, *req.Steps)
		}
		m.Steps = *req.Steps
	default:
		return m, errors.New("one of degrees or steps is required")
	}

	dir, err := stepper.ParseDirection(req.Direction)
	if err != nil {
		return m, err
	}
	m.Direction = dir

	if req.Velocity < 0 {
		return m, fmt.Errorf("velocity must be >= 0, got %d", req.Velocity)
	}
	m.Velocity = req.Velocity
	return m, nil
}

// MoveFunc performs a validated move. It is called in a goroutine.
type MoveFunc func(ctx context.Context, m Move) error

// RunFunc performs a long operation (homing, program). It is called in a goroutine.
type RunFunc func(ctx context.Context) error

// Actions are the motor operations exposed over HTTP.
// A nil Home or Program makes its endpoint return 503.
type Actions struct {
	Move    MoveFunc
	Home    RunFunc
	Program RunFunc
	State   func() motion.State
}

// MotorSummary is served by GET /config.
type MotorSummary struct {
	StepsPerRev     int     `json:"steps_per_rev"`
	HalfStepsPerRev int     `json:"half_steps_per_rev"`
	DegreesPerStep  float64 `json:"degrees_per_step"`
	Pins            [4]int  `json:"pins"`
	HomePin         int     `json:"home_pin,omitempty"`
	Waypoints       int     `json:"waypoints"`
	Backend         string  `json:"backend"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Actions     Actions
	Summary     MotorSummary
	runningMu   sync.Mutex
	running     bool
	baseCtx     context.Context
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, actions Actions, summary MotorSummary, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Actions:     actions,
		Summary:     summary,
		baseCtx:     context.Background(),
		staticFS:    staticFS,
	}
}

// Running reports whether an operation started over HTTP is still in progress.
func (h *Handlers) Running() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// HandleConfig returns the motor summary as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Summary)
}

// HandleState returns the latest motor snapshot as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.Actions.State == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Actions.State())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleMove handles POST /move.
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	m, err := ValidateMove(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Actions.Move == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	h.start(w, "Move", func(ctx context.Context) error {
		return h.Actions.Move(ctx, m)
	})
}

// HandleHome handles POST /home.
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Actions.Home == nil {
		http.Error(w, "homing not configured", http.StatusServiceUnavailable)
		return
	}
	h.start(w, "Homing", h.Actions.Home)
}

// HandleProgram handles POST /program.
func (h *Handlers) HandleProgram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Actions.Program == nil {
		http.Error(w, "program not configured", http.StatusServiceUnavailable)
		return
	}
	h.start(w, "Program", h.Actions.Program)
}

// start runs fn in a goroutine unless another operation is in progress,
// and answers 202 or 409.
func (h *Handlers) start(w http.ResponseWriter, name string, fn RunFunc) {
	h.runningMu.Lock()
	if h.running || (h.Actions.State != nil && h.Actions.State().Busy) {
		h.runningMu.Unlock()
		http.Error(w, "motor busy", http.StatusConflict)
		return
	}
	h.running = true
	ctx := h.baseCtx
	h.runningMu.Unlock()

	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		if err := fn(ctx); err != nil {
			h.Broadcaster.Broadcast("error", name+" failed: "+err.Error())
			debug.Error(fmt.Errorf("%s: %w", name, err))
		} else {
			h.Broadcaster.Broadcast("info", name+" complete")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if h.Actions.State != nil {
		data, err := json.Marshal(StatusEvent{
			Time:  time.Now().Format(time.RFC3339),
			Level: "state",
			State: h.Actions.State(),
		})
		if err == nil {
			w.Write([]byte("data: " + string(data) + "\n\n"))
		}
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
