package scenario

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecheney/rvhal"
	"github.com/matryer/is"
)

func TestScripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no scripts in testdata")
	}
	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			is := is.New(t)
			s, err := LoadFile(path)
			is.NoErr(err)

			direct, err := Run(s, rvhal.ModeDirect, nil)
			is.NoErr(err)
			vectored, err := Run(s, rvhal.ModeVectored, nil)
			is.NoErr(err)

			is.NoErr(s.Check(direct))

			// a fault raised by a handler reports the entry point's pc,
			// which is where the two modes differ
			is.Equal(faultCause(direct), faultCause(vectored))
			direct.Fault, vectored.Fault = nil, nil
			is.Equal(direct, vectored)
		})
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "name: x\nsteps:\n  - {op: raise, line: 1, colour: red}\n",
		"unknown handler":  "steps:\n  - {op: bind, line: 1, handler: nope}\n",
		"unknown fault":    "handlers:\n  h: {fault: meltdown}\n",
		"bad exceptions":   "exceptions: ignore\n",
		"wrong field type": "preemption: sometimes\n",
	}
	for name, src := range tests {
		src := src
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(src))
			if err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	is := is.New(t)
	s, err := Load(strings.NewReader("steps:\n  - {op: enable, line: 40, priority: 1}\n"))
	is.NoErr(err)
	_, err = Run(s, rvhal.ModeDirect, nil)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "step 0 (enable)"))

	s, err = Load(strings.NewReader("steps:\n  - {op: exit}\n"))
	is.NoErr(err)
	_, err = Run(s, rvhal.ModeDirect, nil)
	is.True(err != nil)

	s, err = Load(strings.NewReader("chip: esp32s3\n"))
	is.NoErr(err)
	_, err = Run(s, rvhal.ModeDirect, nil)
	is.Equal(err, rvhal.ErrUnknownChip)
}

func TestCheck(t *testing.T) {
	is := is.New(t)
	s := &Script{Name: "t", Expect: &Expect{Trace: []string{"+a", "-a"}}}
	is.NoErr(s.Check(&Result{Trace: []Event{{Handler: "a"}, {Handler: "a", Exit: true}}}))

	err := s.Check(&Result{Halted: true})
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "halted"))
	is.True(strings.Contains(err.Error(), "trace"))
}

func faultCause(res *Result) rvhal.Cause {
	var fault *rvhal.FaultError
	if errors.As(res.Fault, &fault) {
		return fault.Cause
	}
	return 0
}
