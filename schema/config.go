package schema

// ShellConfig defines defaults for shell sessions and backgrounding.
type ShellConfig struct {
	// TermType is the terminal type sent with the PTY request.
	TermType string
	// BufferBytes caps the background output buffer per session.
	BufferBytes int
}

const (
	// DefaultTermType is the terminal type requested for remote PTYs.
	DefaultTermType = "xterm-256color"
	// DefaultBufferBytes is the default background buffer capacity.
	DefaultBufferBytes = 8192
)

// NormalizeShellConfig applies defaults to unset fields.
func NormalizeShellConfig(cfg ShellConfig) ShellConfig {
	if cfg.TermType == "" {
		cfg.TermType = DefaultTermType
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = DefaultBufferBytes
	}
	return cfg
}
