// logging.go - structured logging seam for the scheduler and bus.
//
// Design decision: unlike the teacher's package-level global logger, every
// Logger here is injected via a functional option (WithSchedulerLogger /
// WithBusLogger) at construction time. spec.md section 9's "Process-wide
// singletons" note asks for explicit owned objects instead of module
// globals, and a shared package-level logger would be exactly the kind of
// hidden global state that note warns against.
package cotask

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is a small leveled-logging interface, allowing this package's
// structured events (topic creation, subscribe, dropped or rate-limited
// publishes, dispatch, task panics) to integrate with whatever logging framework the host
// application already uses, while a no-op implementation is the default.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

type noopLogger struct{}

// NewNoOpLogger returns a Logger that discards everything. It is the
// default used when no logger option is supplied.
func NewNoOpLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, map[string]any)         {}
func (noopLogger) Info(string, map[string]any)          {}
func (noopLogger) Warn(string, map[string]any)          {}
func (noopLogger) Error(string, error, map[string]any)  {}

// stumpyLogger adapts a logiface.Logger[*stumpy.Event] (the teacher's
// logiface+stumpy pairing, per logiface-stumpy/example_test.go) to Logger.
type stumpyLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewStumpyLogger constructs a Logger backed by logiface/stumpy, writing
// newline-delimited JSON to w. A nil w defaults to stumpy's own default
// (os.Stderr).
func NewStumpyLogger(w io.Writer) Logger {
	var opts []stumpy.Option
	if w != nil {
		opts = append(opts, stumpy.WithWriter(w))
	}
	return &stumpyLogger{l: stumpy.L.New(stumpy.L.WithStumpy(opts...))}
}

func logFields(b *logiface.Builder[*stumpy.Event], fields map[string]any) *logiface.Builder[*stumpy.Event] {
	for k, v := range fields {
		b = b.Any(k, v)
	}
	return b
}

func (s *stumpyLogger) Debug(msg string, fields map[string]any) {
	logFields(s.l.Debug(), fields).Log(msg)
}

func (s *stumpyLogger) Info(msg string, fields map[string]any) {
	logFields(s.l.Info(), fields).Log(msg)
}

func (s *stumpyLogger) Warn(msg string, fields map[string]any) {
	logFields(s.l.Warning(), fields).Log(msg)
}

func (s *stumpyLogger) Error(msg string, err error, fields map[string]any) {
	b := s.l.Err()
	if err != nil {
		b = b.Err(err)
	}
	logFields(b, fields).Log(msg)
}
