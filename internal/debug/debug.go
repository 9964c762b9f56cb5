package debug

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (motor setup, homing result)
	LevelLive    = 2 // Live info (moves, waypoints)
	LevelVerbose = 3 // Verbose (step counts, angle arithmetic)
	LevelTrace   = 4 // Trace (phases, GPIO)
)

var (
	level  int
	logger = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Init sets the debug level (0-4).
// 0 = no output
// 1 = important info (motor setup, homing result)
// 2 = live info (moves, waypoints)
// 3 = verbose (step counts, angle arithmetic)
// 4 = trace (phase transitions, GPIO)
func Init(debugLevel int) {
	level = debugLevel
	logger.SetLevel(logrusLevel(debugLevel))
}

// logrusLevel maps a debug level onto the closest logrus level. Live and
// verbose both land on Debug; the [LIVE]/[VERBOSE] gate is our own.
func logrusLevel(debugLevel int) logrus.Level {
	switch {
	case debugLevel <= LevelOff:
		return logrus.PanicLevel
	case debugLevel == LevelInfo:
		return logrus.InfoLevel
	case debugLevel < LevelTrace:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// SetOutput redirects all debug output, e.g. to tee it into the web status stream.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// Logger exposes the underlying logger for callers that want structured fields.
func Logger() *logrus.Logger {
	return logger
}

// --- Level 1 functions (Info) ---

// Info prints a level 1 message.
func Info(format string, args ...interface{}) {
	if level >= LevelInfo {
		logger.Infof(format, args...)
	}
}

// Summary prints a framed title (level 1).
func Summary(title string) {
	if level >= LevelInfo {
		logger.Info("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Info("═══════════════════════════════════════")
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo {
		logger.WithField(name, value).Info("value")
	}
}

// Error prints an error (level 1+).
func Error(err error) {
	if level >= LevelInfo {
		logger.WithError(err).Error("error")
	}
}

// --- Level 2 functions (Live) ---

// Live prints a level 2 message.
func Live(format string, args ...interface{}) {
	if level >= LevelLive {
		logger.Debugf("[LIVE] "+format, args...)
	}
}

// Move prints a motor movement (level 2).
func Move(kind string, amount interface{}, direction string) {
	if level >= LevelLive {
		logger.WithFields(logrus.Fields{
			"kind":      kind,
			"amount":    amount,
			"direction": direction,
		}).Debug("[LIVE] move")
	}
}

// Waypoint prints the start of a program waypoint (level 2).
func Waypoint(index, total int, degrees float64, direction string) {
	if level >= LevelLive {
		logger.Debugf("[LIVE] Waypoint %d/%d: %.2f° (%s)", index, total, degrees, direction)
	}
}

// --- Level 3 functions (Verbose) ---

// Verbose prints a level 3 message.
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose {
		logger.Debugf("[VERBOSE] "+format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose {
		logger.Debugf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose {
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debugf("  %s", name)
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose {
		logger.Debugf("[VERBOSE] Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace) ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace {
		logger.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace {
		logger.WithFields(logrus.Fields{
			"op":    operation,
			"pin":   pin,
			"value": value,
		}).Trace("gpio")
	}
}

// Fmt returns a formatted string only if debug is enabled.
func Fmt(format string, args ...interface{}) string {
	if level > LevelOff {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
