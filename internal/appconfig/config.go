package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/spyglass/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	SSH           SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
	Shell         ShellConfig    `mapstructure:"shell" yaml:"shell"`
	Browser       BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Transfer      TransferConfig `mapstructure:"transfer" yaml:"transfer"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// SSHConfig controls how outbound connections are established.
type SSHConfig struct {
	Port                     int    `mapstructure:"port" yaml:"port"`
	ConnectTimeoutSeconds    int    `mapstructure:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	KnownHostsFile           string `mapstructure:"known_hosts_file" yaml:"known_hosts_file"`
	InsecureIgnoreHostKey    bool   `mapstructure:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
	KeyStorePath             string `mapstructure:"key_store_path" yaml:"key_store_path"`
	KeepaliveIntervalSeconds int    `mapstructure:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"`
}

// ShellConfig controls interactive shell sessions.
type ShellConfig struct {
	TermType    string `mapstructure:"term_type" yaml:"term_type"`
	BufferBytes int    `mapstructure:"buffer_bytes" yaml:"buffer_bytes"`
}

// BrowserConfig controls file listing behavior.
type BrowserConfig struct {
	ShowHidden bool   `mapstructure:"show_hidden" yaml:"show_hidden"`
	DirsFirst  bool   `mapstructure:"dirs_first" yaml:"dirs_first"`
	Theme      string `mapstructure:"theme" yaml:"theme"`
}

// TransferConfig controls file downloads and uploads.
type TransferConfig struct {
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".spyglass", "state"),
		SSH: SSHConfig{
			Port:                     schema.DefaultPort,
			ConnectTimeoutSeconds:    10,
			KnownHostsFile:           filepath.Join(home, ".ssh", "known_hosts"),
			InsecureIgnoreHostKey:    false,
			KeyStorePath:             filepath.Join(home, ".spyglass", "state", "keys.bundle"),
			KeepaliveIntervalSeconds: 30,
		},
		Shell: ShellConfig{
			TermType:    schema.DefaultTermType,
			BufferBytes: schema.DefaultBufferBytes,
		},
		Browser: BrowserConfig{
			ShowHidden: false,
			DirsFirst:  true,
			Theme:      "slate",
		},
		Transfer: TransferConfig{
			DownloadDir: "",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".spyglass", "config.yaml"), nil
}
