/*
Package salesman – logging interface.

Model operations log one info line when they start, a data line with the
result and an error line on failure. Trace carries dropped fields, hook names
and describe cache decisions.
*/
package salesman

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
)

// Logger is the interface callers may supply to Salesman.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
	Data(message string, ctx map[string]any)
}

// StdLogger writes through a standard library logger. Trace and data lines
// are only written when Verbose is set.
type StdLogger struct {
	Out     *log.Logger
	Verbose bool
}

// NewStdLogger logs to w; a nil w means stderr.
func NewStdLogger(w io.Writer, verbose bool) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{Out: log.New(w, "salesman ", log.LstdFlags), Verbose: verbose}
}

func (l *StdLogger) Trace(msg string, ctx map[string]any) {
	if l.Verbose {
		l.line("TRACE", msg, ctx)
	}
}

func (l *StdLogger) Data(msg string, ctx map[string]any) {
	if l.Verbose {
		l.line("DATA", msg, ctx)
	}
}

func (l *StdLogger) Info(msg string, ctx map[string]any)  { l.line("INFO", msg, ctx) }
func (l *StdLogger) Error(msg string, ctx map[string]any) { l.line("ERROR", msg, ctx) }

func (l *StdLogger) line(level, msg string, ctx map[string]any) {
	out := l.Out
	if out == nil {
		out = log.Default()
	}
	var b strings.Builder
	b.WriteString("[" + level + "] " + msg)
	if len(ctx) > 0 {
		if js, err := json.Marshal(ctx); err == nil {
			b.WriteByte(' ')
			b.Write(js)
		}
	}
	out.Print(b.String())
}

// FuncLogger wraps a plain function: func(level, message string, ctx map[string]any).
type FuncLogger struct {
	Fn func(level, message string, ctx map[string]any)
}

func (f FuncLogger) Trace(msg string, ctx map[string]any) { f.Fn("trace", msg, ctx) }
func (f FuncLogger) Data(msg string, ctx map[string]any)  { f.Fn("data", msg, ctx) }
func (f FuncLogger) Info(msg string, ctx map[string]any)  { f.Fn("info", msg, ctx) }
func (f FuncLogger) Error(msg string, ctx map[string]any) { f.Fn("error", msg, ctx) }

// NopLogger silently discards everything.
type NopLogger struct{}

func (NopLogger) Trace(string, map[string]any) {}
func (NopLogger) Data(string, map[string]any)  {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
