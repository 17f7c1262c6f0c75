package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

// Statuses surfaced on the browser status line after a shell visit.
const (
	StatusShellExited = "shell exited"
	StatusShellError  = "shell error"
)

// Controller owns which of browser and shell has terminal focus, and
// the single shell session that may exist at a time. The session is an
// exclusively-owned nilable field; the background-shell indicator is
// derived from it and nothing else.
type Controller struct {
	transport Transport
	terminal  Terminal
	cfg       schema.ShellConfig
	log       pslog.Logger

	mu      sync.Mutex
	mode    schema.Mode
	session *shellSession
}

// ToggleResult reports how a shell visit ended.
type ToggleResult struct {
	Disposition schema.Disposition
	Status      string
}

// NewController constructs the mode controller.
func NewController(cfg schema.ShellConfig, deps ControllerDeps) (*Controller, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if deps.Terminal == nil {
		return nil, errors.New("terminal is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Controller{
		transport: deps.Transport,
		terminal:  deps.Terminal,
		cfg:       schema.NormalizeShellConfig(cfg),
		log:       logger,
		mode:      schema.ModeBrowser,
	}, nil
}

// ToggleShell hands the terminal to the shell and blocks until focus
// returns. If no session is alive one is spawned rooted at browsedPath;
// an active session is resumed on its existing channel after exactly
// one window-change carrying the current geometry. Terminal mode is
// restored on every exit path. A transport-level failure is returned
// wrapping schema.ErrTransport and is never retried here. Leaving the
// shell is driven by the bridge's disposition alone; a second caller
// toggling while the shell has focus is refused.
func (c *Controller) ToggleShell(ctx context.Context, browsedPath string) (ToggleResult, error) {
	if c.Mode() == schema.ModeShell {
		return ToggleResult{}, schema.ErrShellActive
	}
	if c.transportDead() {
		c.setMode(schema.ModeErrorRecovery)
		c.log.Warn("shell toggle refused", "err", c.transport.Err())
		return ToggleResult{}, fmt.Errorf("%w: %v", schema.ErrTransport, c.transport.Err())
	}

	release, err := c.terminal.EnterPassthrough()
	if err != nil {
		return ToggleResult{}, fmt.Errorf("enter passthrough: %w", err)
	}
	defer release()

	geometry, err := c.terminal.Geometry()
	if err != nil {
		c.log.Warn("terminal geometry query failed", "err", err)
		geometry = schema.TerminalGeometry{Cols: 80, Rows: 24}
	}

	session := c.liveSession()
	reuse := session != nil
	c.log.Info("shell toggle start", "dir", browsedPath, "reuse", reuse)
	if session == nil {
		session, err = spawnShell(c.transport, c.terminal, c.cfg, geometry, browsedPath, c.log)
		if err != nil {
			if c.transportDead() {
				c.setMode(schema.ModeErrorRecovery)
				return ToggleResult{}, fmt.Errorf("%w: %v", schema.ErrTransport, err)
			}
			return ToggleResult{}, err
		}
		c.setSession(session)
	} else {
		session.UpdateSize(geometry)
	}

	c.setMode(schema.ModeShell)
	disposition, runErr := session.Run(ctx)
	c.setMode(schema.ModeBrowser)

	if runErr != nil {
		if ctx.Err() != nil {
			return ToggleResult{Disposition: disposition}, runErr
		}
		c.discardSession(session)
		if c.transportDead() {
			c.setMode(schema.ModeErrorRecovery)
			return ToggleResult{}, fmt.Errorf("%w: %v", schema.ErrTransport, runErr)
		}
		c.log.Warn("shell session failed", "err", runErr)
		return ToggleResult{Disposition: schema.DispositionFailed, Status: StatusShellError}, runErr
	}

	switch disposition {
	case schema.DispositionTerminated:
		c.discardSession(session)
		c.log.Info("shell toggle end", "disposition", disposition)
		return ToggleResult{Disposition: disposition, Status: StatusShellExited}, nil
	default:
		c.log.Info("shell toggle end", "disposition", disposition)
		return ToggleResult{Disposition: disposition}, nil
	}
}

// HasBackgroundShell reports whether a shell session exists and is
// active. This is the sole source of truth for the browser header's
// indicator.
func (c *Controller) HasBackgroundShell() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.Status() == schema.SessionActive
}

// Mode reports the current focus state.
func (c *Controller) Mode() schema.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Close releases any live session. Called on app teardown.
func (c *Controller) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

// liveSession returns the active session, reaping one that terminated
// while backgrounded so the next toggle spawns fresh.
func (c *Controller) liveSession() *shellSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	if c.session.Status() != schema.SessionActive {
		_ = c.session.Close()
		c.session = nil
		return nil
	}
	return c.session
}

func (c *Controller) setSession(session *shellSession) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

func (c *Controller) discardSession(session *shellSession) {
	_ = session.Close()
	c.mu.Lock()
	if c.session == session {
		c.session = nil
	}
	c.mu.Unlock()
}

func (c *Controller) setMode(mode schema.Mode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

func (c *Controller) transportDead() bool {
	select {
	case <-c.transport.Done():
		return true
	default:
		return false
	}
}
