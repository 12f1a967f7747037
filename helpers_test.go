package rvhal

import (
	"fmt"
	"sync"
	"testing"

	"github.com/matryer/is"
)

var modes = []Mode{ModeDirect, ModeVectored}

// logRecorder collects log output.
type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *logRecorder) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func newHart(t *testing.T, cfg Config) *Hart {
	t.Helper()
	is := is.NewRelaxed(t)
	h, err := New(cfg)
	is.NoErr(err)
	if h == nil {
		t.FailNow()
	}
	return h
}

// eachMode runs fn once per dispatch strategy.
func eachMode(t *testing.T, fn func(t *testing.T, mode Mode)) {
	for _, mode := range modes {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) { fn(t, mode) })
	}
}

func mustPanicToken(t *testing.T, fn func()) *TokenError {
	t.Helper()
	var got *TokenError
	func() {
		defer func() {
			got, _ = recover().(*TokenError)
		}()
		fn()
	}()
	if got == nil {
		t.Fatal("expected a *TokenError panic")
	}
	return got
}
