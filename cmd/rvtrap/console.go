//go:build linux || darwin

package main

import (
	"os"

	"github.com/davecheney/rvhal"
	"golang.org/x/sys/unix"
)

func tcget(fd uintptr) (*unix.Termios, error) {
	p, err := unix.IoctlGetTermios(int(fd), getTermios)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func tcset(fd uintptr, p *unix.Termios) error {
	return unix.IoctlSetTermios(int(fd), setTermios, p)
}

// console turns keystrokes into interrupt requests, the way a UART
// receiver would.
type console struct {
	in    *os.File
	saved *unix.Termios
}

// openConsole puts f in character-at-a-time mode when it is a terminal.
// Anything else is read as is.
func openConsole(f *os.File) *console {
	c := &console{in: f}
	old, err := tcget(f.Fd())
	if err != nil {
		return c
	}
	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := tcset(f.Fd(), &raw); err == nil {
		c.saved = old
	}
	return c
}

func (c *console) restore() {
	if c.saved != nil {
		_ = tcset(c.in.Fd(), c.saved)
	}
}

// poll raises line n for key n and calls quit on q or end of input.
func (c *console) poll(h *rvhal.Hart, quit func()) {
	var buf [1]byte
	for {
		if _, err := c.in.Read(buf[:]); err != nil {
			quit()
			return
		}
		switch b := buf[0]; {
		case b >= '1' && b <= '9':
			_ = h.Raise(int(b - '0'))
		case b == 'q', b == 'Q':
			quit()
			return
		}
	}
}
