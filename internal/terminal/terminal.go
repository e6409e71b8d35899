package terminal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// ctrlC is what the terminal sends for Ctrl-C once ISIG is off.
const ctrlC = 0x03

// Controller puts the local terminal into raw mode for the duration of a
// run's streaming phase.
type Controller struct {
	in *os.File
}

func NewController(in *os.File) *Controller {
	return &Controller{in: in}
}

// IsTerminal reports whether the controller's input is a terminal.
func (c *Controller) IsTerminal() bool {
	return c.in != nil && term.IsTerminal(int(c.in.Fd()))
}

// Enter switches the terminal to raw mode and returns a restore func that is
// safe to call more than once. In raw mode the kernel no longer turns Ctrl-C
// into SIGINT, so onInterrupt is called when it is typed. When the input is
// not a terminal Enter does nothing and returns a no-op restore.
func (c *Controller) Enter(onInterrupt func()) (func(), error) {
	if !c.IsTerminal() {
		return func() {}, nil
	}

	fd := int(c.in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, fmt.Errorf("failed to enable raw terminal mode: %w", err)
	}

	var active atomic.Bool
	active.Store(true)

	// The reader goroutine stays blocked on stdin after restore; the process
	// exits shortly after cleanup, so it is left behind.
	go WatchInterrupt(c.in, func() {
		if active.Load() {
			onInterrupt()
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			active.Store(false)
			if err := term.Restore(fd, state); err != nil {
				slog.Warn("Failed to restore terminal state", "error", err)
			}
		})
	}, nil
}

// WatchInterrupt reads r until the first Ctrl-C byte, calls onInterrupt
// once and returns. It also returns when r fails or ends.
func WatchInterrupt(r io.Reader, onInterrupt func()) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == ctrlC {
				onInterrupt()
				return
			}
		}
		if err != nil {
			return
		}
	}
}
