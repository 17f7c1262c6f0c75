package core

import (
	"io"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/schema"
)

// ShellChannel is one PTY-capable channel opened on the transport. It
// mirrors the shape of an SSH session so the live implementation is a
// thin adapter and tests can script every step.
type ShellChannel interface {
	RequestPty(termType string, rows, cols int) error
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	Start(command string) error
	WindowChange(rows, cols int) error
	Close() error
}

// Transport opens shell channels on the shared authenticated
// connection. Done is closed when the underlying connection dies; Err
// reports why. After Done no further channels may be opened.
type Transport interface {
	OpenChannel() (ShellChannel, error)
	Done() <-chan struct{}
	Err() error
}

// Terminal is the local terminal as the controller sees it.
//
// EnterPassthrough flips the terminal from structured rendering to raw
// passthrough and returns the release that flips it back; the release
// must be idempotent. InputChunks delivers local keyboard bytes; only
// one component consumes it at a time, and ownership moves with focus.
type Terminal interface {
	EnterPassthrough() (release func(), err error)
	Geometry() (schema.TerminalGeometry, error)
	InputChunks() <-chan []byte
	Output() io.Writer
}

// ControllerDeps carries the controller's collaborators.
type ControllerDeps struct {
	Transport Transport
	Terminal  Terminal
	Logger    pslog.Logger
}
