package schema

// SessionStatus describes the lifecycle state of a shell session.
type SessionStatus string

const (
	// SessionUninitialized indicates a session that has not spawned yet.
	SessionUninitialized SessionStatus = "uninitialized"
	// SessionActive indicates a live session with an open channel.
	SessionActive SessionStatus = "active"
	// SessionExited indicates the remote shell terminated cleanly.
	SessionExited SessionStatus = "exited"
	// SessionFailed indicates the session died from an I/O error.
	SessionFailed SessionStatus = "failed"
)

// Disposition is the outcome of a foreground bridging run.
type Disposition string

const (
	// DispositionToggledBack means the user toggled back to the browser;
	// the session stays alive in the background.
	DispositionToggledBack Disposition = "toggled-back"
	// DispositionTerminated means the remote shell exited.
	DispositionTerminated Disposition = "terminated"
	// DispositionFailed means the session died from an I/O error.
	DispositionFailed Disposition = "failed"
)

// Mode identifies which surface owns the terminal and input focus.
type Mode string

const (
	// ModeBrowser indicates the structured file browser has focus.
	ModeBrowser Mode = "browser"
	// ModeShell indicates the raw shell passthrough has focus.
	ModeShell Mode = "shell"
	// ModeErrorRecovery indicates the transport failed and no further
	// channels may be opened on it.
	ModeErrorRecovery Mode = "error-recovery"
)

// TerminalGeometry is a snapshot of the local terminal size in cells.
type TerminalGeometry struct {
	Cols int
	Rows int
}

// SavedConnection is a named connection profile.
type SavedConnection struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	IdentityFile string `json:"identity_file,omitempty"`
}

// DisplayName renders the connection as user@host:port.
func (c SavedConnection) DisplayName() string {
	return Address(c.Username, c.Host, c.Port)
}

// SessionState is the per-connection browser state restored on connect.
type SessionState struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	CurrentPath   string `json:"current_path"`
	SelectedIndex int    `json:"selected_index"`
}

// FileEntry describes one remote directory entry.
type FileEntry struct {
	Name  string
	Size  int64
	Mode  string
	IsDir bool
}
