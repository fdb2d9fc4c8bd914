package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Logger is passed by value. The zero Logger discards everything.
type Logger struct {
	svc   *Service       // live root, follows Service.Apply
	fixed zerolog.Logger // used when svc is nil
	set   bool

	fields  []Field
	limiter *rate.Limiter
}

func Nop() Logger { return Logger{fixed: zerolog.Nop(), set: true} }

// NewWriter logs JSON lines to w, independent of any Service.
func NewWriter(w io.Writer, level string) Logger {
	return Logger{fixed: newRoot(w, parseLevel(level, zerolog.DebugLevel)), set: true}
}

func (l Logger) IsZero() bool { return l.svc == nil && !l.set && len(l.fields) == 0 }

func (l Logger) zl() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.set:
		return l.fixed
	default:
		return zerolog.Nop()
	}
}

// With returns a child logger that stamps fields on every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(append(child.fields, l.fields...), fields...)
	return child
}

// Limited drops events while lim is out of tokens. Children of the result
// draw from the same bucket. Events below the level cost no token.
func (l Logger) Limited(lim *rate.Limiter) Logger {
	l.limiter = lim
	return l
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.zl()
	if level < zl.GetLevel() {
		return
	}
	if l.limiter != nil && !l.limiter.Allow() {
		return
	}
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	// emit <- Info/Warn/... <- call site
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, group := range [2][]Field{l.fields, fields} {
		for _, f := range group {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
