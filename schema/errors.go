package schema

import "errors"

var (
	// ErrChannelOpen indicates the transport refused a new channel.
	ErrChannelOpen = errors.New("channel open failed")
	// ErrPtyRequest indicates the remote side rejected the PTY request.
	ErrPtyRequest = errors.New("pty request failed")
	// ErrExec indicates the shell command could not be started.
	ErrExec = errors.New("exec failed")
	// ErrRuntimeIO indicates a live session died from an I/O error.
	ErrRuntimeIO = errors.New("session i/o failed")
	// ErrTransport indicates the underlying connection is dead; both the
	// browser channel and any shell channel are lost with it.
	ErrTransport = errors.New("transport failed")
	// ErrShellActive indicates a second shell session was requested while
	// one is still live.
	ErrShellActive = errors.New("shell session already active")
	// ErrInvalidDestination indicates a destination string that is not
	// user@host or user@host:port.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrConnectionNotFound indicates an unknown saved connection name.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrIdentityNotFound indicates no usable private key was resolved.
	ErrIdentityNotFound = errors.New("identity not found")
)
