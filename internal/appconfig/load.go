package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("ssh.port", cfg.SSH.Port)
	v.SetDefault("ssh.connect_timeout_seconds", cfg.SSH.ConnectTimeoutSeconds)
	v.SetDefault("ssh.known_hosts_file", cfg.SSH.KnownHostsFile)
	v.SetDefault("ssh.insecure_ignore_host_key", cfg.SSH.InsecureIgnoreHostKey)
	v.SetDefault("ssh.key_store_path", cfg.SSH.KeyStorePath)
	v.SetDefault("ssh.keepalive_interval_seconds", cfg.SSH.KeepaliveIntervalSeconds)
	v.SetDefault("shell.term_type", cfg.Shell.TermType)
	v.SetDefault("shell.buffer_bytes", cfg.Shell.BufferBytes)
	v.SetDefault("browser.show_hidden", cfg.Browser.ShowHidden)
	v.SetDefault("browser.dirs_first", cfg.Browser.DirsFirst)
	v.SetDefault("browser.theme", cfg.Browser.Theme)
	v.SetDefault("transfer.download_dir", cfg.Transfer.DownloadDir)

	// A missing config file is fine for a client tool; defaults apply.
	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if port := v.GetInt("ssh.port"); port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("ssh.port %d is out of range", port)
		}
		if v.GetInt("shell.buffer_bytes") < 0 {
			return Config{}, fmt.Errorf("shell.buffer_bytes must not be negative")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	return cfg, nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.SSH.KnownHostsFile = expandEnv(cfg.SSH.KnownHostsFile)
	cfg.SSH.KeyStorePath = expandEnv(cfg.SSH.KeyStorePath)
	cfg.Transfer.DownloadDir = expandEnv(cfg.Transfer.DownloadDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
