package core

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/alessio/shellescape"
	"pkt.systems/pslog"

	"pkt.systems/spyglass/internal/logx"
	"pkt.systems/spyglass/schema"
)

// shellSession owns one PTY-backed shell channel on the transport. It
// lives until the remote shell exits or its I/O fails; toggling focus
// away never destroys it. The spawn directory is captured once and
// never changes for the session's life.
type shellSession struct {
	id      string
	dir     string
	channel ShellChannel
	stdin   io.WriteCloser
	bridge  *ioBridge
	log     pslog.Logger

	mu        sync.Mutex
	status    schema.SessionStatus
	closeOnce sync.Once
	closeErr  error
}

// spawnShell opens a channel, requests a PTY sized to geometry, and
// starts a login shell in dir. On failure the channel is closed and no
// session is retained; the error wraps the sentinel for the step that
// failed.
func spawnShell(transport Transport, terminal Terminal, cfg schema.ShellConfig, geometry schema.TerminalGeometry, dir string, logger pslog.Logger) (*shellSession, error) {
	id := newSessionID()
	log := logx.WithSession(logger, id).With("dir", dir)
	channel, err := transport.OpenChannel()
	if err != nil {
		log.Warn("shell channel open failed", "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrChannelOpen, err)
	}
	if err := channel.RequestPty(cfg.TermType, geometry.Rows, geometry.Cols); err != nil {
		_ = channel.Close()
		log.Warn("shell pty request failed", "err", err, "term", cfg.TermType)
		return nil, fmt.Errorf("%w: %v", schema.ErrPtyRequest, err)
	}
	stdin, err := channel.StdinPipe()
	if err != nil {
		_ = channel.Close()
		log.Warn("shell exec failed", "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrExec, err)
	}
	stdout, err := channel.StdoutPipe()
	if err != nil {
		_ = channel.Close()
		log.Warn("shell exec failed", "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrExec, err)
	}
	if err := channel.Start(loginShellCommand(dir)); err != nil {
		_ = channel.Close()
		log.Warn("shell exec failed", "err", err)
		return nil, fmt.Errorf("%w: %v", schema.ErrExec, err)
	}
	session := &shellSession{
		id:      id,
		dir:     dir,
		channel: channel,
		stdin:   stdin,
		log:     log,
		status:  schema.SessionActive,
	}
	session.bridge = newIOBridge(session, stdout, terminal, cfg.BufferBytes, log)
	session.bridge.startDrain()
	log.Info("shell spawned", "term", cfg.TermType, "cols", geometry.Cols, "rows", geometry.Rows)
	return session, nil
}

// loginShellCommand changes into dir and replaces the remote process
// with the user's login shell. The directory is quoted so names with
// spaces, quotes, and other metacharacters survive.
func loginShellCommand(dir string) string {
	return "cd " + shellescape.Quote(dir) + " && exec $SHELL -l"
}

// Dir returns the directory the session was spawned in.
func (s *shellSession) Dir() string {
	return s.dir
}

// Status reports the session lifecycle state.
func (s *shellSession) Status() schema.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *shellSession) setStatus(status schema.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Run bridges the session with the local terminal until the user
// toggles back or the session ends. An existing session resumes on its
// live channel; nothing is re-spawned.
func (s *shellSession) Run(ctx context.Context) (schema.Disposition, error) {
	return s.bridge.runForeground(ctx)
}

// UpdateSize sends a window-change on the live channel. A failure here
// usually means the remote side already closed; the next Run observes
// the termination, so the failure is only logged.
func (s *shellSession) UpdateSize(geometry schema.TerminalGeometry) {
	if err := s.channel.WindowChange(geometry.Rows, geometry.Cols); err != nil {
		s.log.Warn("shell resize failed", "err", err, "cols", geometry.Cols, "rows", geometry.Rows)
		return
	}
	s.log.Debug("shell resized", "cols", geometry.Cols, "rows", geometry.Rows)
}

func (s *shellSession) writeStdin(p []byte) error {
	_, err := s.stdin.Write(p)
	return err
}

// Close releases the channel. Safe to call more than once.
func (s *shellSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.channel.Close()
	})
	return s.closeErr
}
