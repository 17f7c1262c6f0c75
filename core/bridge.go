package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

// toggleByte (Ctrl+S) is intercepted client-side before any network
// transmission. It collides with XOFF in remote programs that enable
// terminal flow control; the workaround is disabling flow control in
// the remote shell.
const toggleByte = 0x13

// ioBridge moves bytes between the local terminal and one shell
// channel. The output flow drains the channel for the session's whole
// life; the input flow runs only while the shell is foreground. The
// sink flip, the background buffer, and terminal writes are all
// serialized by mu so output ordering holds across reattachment.
type ioBridge struct {
	session  *shellSession
	stdout   io.Reader
	terminal Terminal
	log      pslog.Logger

	mu         sync.Mutex
	foreground bool
	buffer     *backgroundBuffer

	done  chan struct{}
	ioErr error
}

func newIOBridge(session *shellSession, stdout io.Reader, terminal Terminal, bufferBytes int, log pslog.Logger) *ioBridge {
	return &ioBridge{
		session:  session,
		stdout:   stdout,
		terminal: terminal,
		log:      log,
		buffer:   newBackgroundBuffer(int64(bufferBytes)),
		done:     make(chan struct{}),
	}
}

// startDrain begins the output flow. It must be called exactly once,
// when the session becomes active.
func (b *ioBridge) startDrain() {
	go b.drain()
}

func (b *ioBridge) drain() {
	chunk := make([]byte, 4096)
	for {
		n, err := b.stdout.Read(chunk)
		if n > 0 {
			b.sinkWrite(chunk[:n])
		}
		if err != nil {
			if err == io.EOF {
				b.finish(nil)
			} else {
				b.finish(err)
			}
			return
		}
	}
}

// sinkWrite delivers remote output to the current sink: the terminal
// when foreground, the background buffer otherwise.
func (b *ioBridge) sinkWrite(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.foreground {
		if _, err := b.terminal.Output().Write(p); err != nil {
			b.log.Warn("terminal write failed", "err", err)
		}
		return
	}
	_, _ = b.buffer.Write(p)
}

// finish records why the output flow stopped. A nil error is a clean
// remote exit; anything else is an I/O failure.
func (b *ioBridge) finish(err error) {
	if err != nil {
		b.session.setStatus(schema.SessionFailed)
		b.log.Warn("shell output flow failed", "err", err)
	} else {
		b.session.setStatus(schema.SessionExited)
		b.log.Debug("shell output flow ended")
	}
	b.ioErr = err
	close(b.done)
}

// attach replays buffered background output to the terminal and makes
// the terminal the live sink. Holding mu across the replay keeps the
// drain from interleaving writes around the flip.
func (b *ioBridge) attach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if data, dropped := b.buffer.Drain(); len(data) > 0 || dropped > 0 {
		if len(data) > 0 {
			if _, err := b.terminal.Output().Write(data); err != nil {
				b.log.Warn("terminal write failed", "err", err)
			}
		}
		b.log.Debug("background output replayed", "bytes", len(data), "dropped", dropped)
	}
	b.foreground = true
}

// background flips the sink back to the buffer.
func (b *ioBridge) background() {
	b.mu.Lock()
	b.foreground = false
	b.mu.Unlock()
}

// runForeground attaches the terminal and bridges until a disposition
// is reached. Local input is consumed only inside this loop; a chunk
// containing the toggle byte is withheld in its entirety, including any
// bytes typed ahead of it in the same chunk.
func (b *ioBridge) runForeground(ctx context.Context) (schema.Disposition, error) {
	b.attach()
	defer b.background()
	input := b.terminal.InputChunks()
	for {
		select {
		case <-ctx.Done():
			return schema.DispositionToggledBack, ctx.Err()
		case <-b.done:
			if b.ioErr != nil {
				return schema.DispositionFailed, fmt.Errorf("%w: %v", schema.ErrRuntimeIO, b.ioErr)
			}
			return schema.DispositionTerminated, nil
		case chunk, ok := <-input:
			if !ok {
				return schema.DispositionFailed, fmt.Errorf("%w: local input closed", schema.ErrRuntimeIO)
			}
			if bytes.IndexByte(chunk, toggleByte) >= 0 {
				return schema.DispositionToggledBack, nil
			}
			if err := b.session.writeStdin(chunk); err != nil {
				b.session.setStatus(schema.SessionFailed)
				return schema.DispositionFailed, fmt.Errorf("%w: %v", schema.ErrRuntimeIO, err)
			}
		}
	}
}
