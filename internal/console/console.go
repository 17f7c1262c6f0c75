// Package console owns the local terminal: raw mode, the alternate
// screen, geometry queries, resize signals, and the single stdin pump
// whose chunk channel feeds browser key decoding and shell passthrough.
// Only one of those consumers reads at a time; the browser blocks in
// the shell toggle while the bridge drains input.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

const (
	enterAltScreen = "\x1b[?1049h\x1b[H\x1b[2J"
	exitAltScreen  = "\x1b[?1049l\x1b[?25h"

	inputChunkBytes = 4096
)

// Console wraps the process's controlling terminal.
type Console struct {
	in  *os.File
	out *os.File
	log pslog.Logger

	mu       sync.Mutex
	oldState *term.State

	input   chan []byte
	resizes chan schema.TerminalGeometry
	winch   chan os.Signal
	stop    chan struct{}

	stopOnce sync.Once
}

// New builds a console over stdin and stdout.
func New(log pslog.Logger) *Console {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Console{
		in:      os.Stdin,
		out:     os.Stdout,
		log:     log,
		input:   make(chan []byte, 16),
		resizes: make(chan schema.TerminalGeometry, 1),
		winch:   make(chan os.Signal, 1),
		stop:    make(chan struct{}),
	}
}

// Start switches the terminal into raw mode, enters the alternate
// screen, and starts the stdin pump and resize watcher. Stop must be
// called on every exit path once Start has succeeded.
func (c *Console) Start() error {
	fd := int(c.in.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	c.mu.Lock()
	c.oldState = state
	c.mu.Unlock()

	_, _ = io.WriteString(c.out, enterAltScreen)

	signal.Notify(c.winch, unix.SIGWINCH)
	go c.watchResizes()
	go c.pumpInput()
	c.log.Debug("console started")
	return nil
}

// Stop restores the terminal. Safe to call more than once.
func (c *Console) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		signal.Stop(c.winch)
		_, _ = io.WriteString(c.out, exitAltScreen)
		c.mu.Lock()
		state := c.oldState
		c.oldState = nil
		c.mu.Unlock()
		if state != nil {
			fd := int(c.in.Fd())
			if err := term.Restore(fd, state); err != nil {
				c.log.Warn("restore terminal mode", "err", err)
			}
		}
		c.log.Debug("console stopped")
	})
}

// EnterPassthrough leaves the alternate screen so remote shell output
// scrolls like a plain terminal. Raw mode stays on. The returned
// release restores the alternate screen and is safe to call once;
// later calls are no-ops.
func (c *Console) EnterPassthrough() (func(), error) {
	c.mu.Lock()
	started := c.oldState != nil
	c.mu.Unlock()
	if !started {
		return nil, errors.New("console not started")
	}
	_, _ = io.WriteString(c.out, exitAltScreen)
	var once sync.Once
	release := func() {
		once.Do(func() {
			_, _ = io.WriteString(c.out, enterAltScreen)
		})
	}
	return release, nil
}

// Geometry reports the current terminal size in cells.
func (c *Console) Geometry() (schema.TerminalGeometry, error) {
	cols, rows, err := term.GetSize(int(c.out.Fd()))
	if err != nil {
		return schema.TerminalGeometry{}, fmt.Errorf("query terminal size: %w", err)
	}
	return schema.TerminalGeometry{Cols: cols, Rows: rows}, nil
}

// InputChunks is the raw stdin chunk stream. Closed when stdin ends.
func (c *Console) InputChunks() <-chan []byte {
	return c.input
}

// Output is the terminal writer shared by the browser and the bridge.
func (c *Console) Output() io.Writer {
	return c.out
}

// Resizes delivers the latest terminal geometry after SIGWINCH. The
// channel holds one pending value; newer geometry replaces older.
func (c *Console) Resizes() <-chan schema.TerminalGeometry {
	return c.resizes
}

func (c *Console) pumpInput() {
	defer close(c.input)
	buf := make([]byte, inputChunkBytes)
	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.input <- chunk:
			case <-c.stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Console) watchResizes() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.winch:
			geo, err := c.Geometry()
			if err != nil {
				continue
			}
			select {
			case c.resizes <- geo:
			default:
				select {
				case <-c.resizes:
				default:
				}
				select {
				case c.resizes <- geo:
				default:
				}
			}
			c.log.Trace("terminal resized", "cols", geo.Cols, "rows", geo.Rows)
		}
	}
}
