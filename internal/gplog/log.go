// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package gplog is a minimal log15-style logger: leveled and structured,
// every record a message plus an even list of key/value context pairs.
// The consensus core uses it exclusively for "bug_condition" records and
// for the transition-frontier/sync-phase trace a human reads when
// diagnosing a stuck node; it never drives control flow.
package gplog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a log record's severity, ordered most-to-least severe like log15.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "crit"
	case LvlError:
		return "eror"
	case LvlWarn:
		return "warn"
	case LvlInfo:
		return "info"
	case LvlDebug:
		return "dbug"
	case LvlTrace:
		return "trce"
	default:
		return "unkn"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Record is a single emitted log line: a timestamp, level, message, the
// caller frame it was emitted from, and an even-length context slice of
// alternating keys and values.
type Record struct {
	Time time.Time
	Lvl  Lvl
	Msg  string
	Call stack.Call
	Ctx  []interface{}
}

// Handler processes a Record, e.g. by formatting and writing it somewhere.
type Handler interface {
	Log(r *Record) error
}

// Logger is the interface the rest of the module depends on; New returns
// one bound to a fixed context.
type Logger interface {
	New(ctx ...interface{}) Logger
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
	h   *swapHandler
}

type swapHandler struct {
	mu sync.RWMutex
	h  Handler
}

func (s *swapHandler) Log(r *Record) error {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.Log(r)
}

func (s *swapHandler) Swap(h Handler) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

var root = &logger{h: new(swapHandler)}

func init() {
	root.h.Swap(StreamHandler(colorableStderr(), TerminalFormat(useColor())))
}

// Root returns the root logger, the ancestor of every Logger returned by
// New with an empty context.
func Root() Logger { return root }

// SetHandler replaces the root logger's handler, e.g. to redirect output
// to a file when --work-dir is set.
func SetHandler(h Handler) { root.h.Swap(h) }

// New returns a Logger whose context is root's plus ctx, so callers
// write `gplog.New("module", "p2p")` once at package init.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

func (l *logger) New(ctx ...interface{}) Logger {
	normalized := normalize(ctx)
	combined := make([]interface{}, 0, len(l.ctx)+len(normalized))
	combined = append(combined, l.ctx...)
	combined = append(combined, normalized...)
	return &logger{ctx: combined, h: l.h}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	combined := make([]interface{}, 0, len(l.ctx)+len(ctx))
	combined = append(combined, l.ctx...)
	combined = append(combined, normalize(ctx)...)
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Call: stack.Caller(2),
		Ctx:  combined,
	}
	_ = l.h.Log(r)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// normalize pads an odd-length context with a placeholder value, matching
// log15's defensive behavior for caller errors. Keys are left as given.
func normalize(ctx []interface{}) []interface{} {
	if len(ctx)%2 != 0 {
		ctx = append(ctx, "LOG_ERROR_MISSING_VALUE")
	}
	return ctx
}

// Formatter renders a Record as bytes for a Handler to write out.
type Formatter interface {
	Format(r *Record) []byte
}

type terminalFormat struct{ color bool }

// TerminalFormat returns a human-oriented formatter: `LVL[time] msg k=v …`,
// colorized by level when color is true.
func TerminalFormat(useColor bool) Formatter { return &terminalFormat{color: useColor} }

func (f *terminalFormat) Format(r *Record) []byte {
	ts := r.Time.Format("2006-01-02T15:04:05-0700")
	prefix := fmt.Sprintf("%s[%s] %s", r.Lvl.String(), ts, r.Msg)
	if f.color {
		if c, ok := levelColor[r.Lvl]; ok {
			prefix = c.Sprint(prefix)
		}
	}
	out := prefix
	for i := 0; i < len(r.Ctx); i += 2 {
		out += fmt.Sprintf(" %v=%v", r.Ctx[i], r.Ctx[i+1])
	}
	return []byte(out + "\n")
}

type streamHandler struct {
	mu  sync.Mutex
	w   io.Writer
	fmt Formatter
}

// StreamHandler writes every formatted record to w, serialized by a mutex
// since the dispatcher may log from more than one effect handler.
func StreamHandler(w io.Writer, f Formatter) Handler {
	return &streamHandler{w: w, fmt: f}
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(h.fmt.Format(r))
	return err
}

func colorableStderr() io.Writer {
	return colorable.NewColorableStderr()
}

func useColor() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}
