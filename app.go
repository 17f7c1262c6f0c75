// Package spyglass composes an interactive client session: one SSH
// connection carrying an SFTP file browser and an on-demand remote
// shell that share the local terminal.
package spyglass

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/browser"
	"pkt.systems/spyglass/core"
	"pkt.systems/spyglass/internal/appconfig"
	"pkt.systems/spyglass/internal/console"
	"pkt.systems/spyglass/internal/identity"
	"pkt.systems/spyglass/internal/logx"
	"pkt.systems/spyglass/internal/persist"
	"pkt.systems/spyglass/internal/sftpfs"
	"pkt.systems/spyglass/internal/sshclient"
	"pkt.systems/spyglass/schema"
)

// Config describes one session against a remote host.
type Config struct {
	App      appconfig.Config
	Host     string
	Port     int
	Username string

	// Identity names a key held in the vault. IdentityFile points at a
	// private key on disk and wins over Identity when both are set.
	Identity     string
	IdentityFile string

	// InitialPath overrides the restored browse directory.
	InitialPath string

	// Insecure disables host key verification for this session.
	Insecure bool
}

// Deps carries optional collaborators.
type Deps struct {
	Logger pslog.Logger
}

// App is a fully wired client session.
type App struct {
	cfg Config
	log pslog.Logger
}

// New validates the session configuration.
func New(cfg Config, deps Deps) (*App, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("host is required")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("username is required")
	}
	if cfg.Port == 0 {
		cfg.Port = cfg.App.SSH.Port
	}
	if cfg.Port == 0 {
		cfg.Port = schema.DefaultPort
	}
	return &App{cfg: cfg, log: deps.Logger}, nil
}

// Run connects, starts the terminal surfaces, and drives the browser
// loop until the user quits or the transport dies. A dead transport is
// reported wrapping schema.ErrTransport; reconnecting is the caller's
// decision.
func (a *App) Run(ctx context.Context) error {
	address := schema.Address(a.cfg.Username, a.cfg.Host, a.cfg.Port)
	log := a.log
	if log == nil {
		log = logx.WithConnection(ctx, address)
	}
	ctx = logx.ContextWithConnectionLogger(ctx, log, address)

	signers, err := a.resolveSigners(log)
	if err != nil {
		return err
	}

	client, err := sshclient.Dial(ctx, sshclient.Config{
		Host:                  a.cfg.Host,
		Port:                  a.cfg.Port,
		Username:              a.cfg.Username,
		Signers:               signers,
		KnownHostsFile:        a.cfg.App.SSH.KnownHostsFile,
		InsecureIgnoreHostKey: a.cfg.Insecure || a.cfg.App.SSH.InsecureIgnoreHostKey,
		ConnectTimeout:        time.Duration(a.cfg.App.SSH.ConnectTimeoutSeconds) * time.Second,
		KeepaliveInterval:     time.Duration(a.cfg.App.SSH.KeepaliveIntervalSeconds) * time.Second,
		Logger:                log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	states, err := persist.NewSessionStateStoreWithLogger(a.cfg.App.StateDir, log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	initialPath, initialSelection := a.initialBrowserState(states, log)

	files, err := sftpfs.NewWithLogger(client.SSH(), log)
	if err != nil {
		return err
	}
	defer func() { _ = files.Close() }()

	term := console.New(log)
	if err := term.Start(); err != nil {
		return err
	}
	defer term.Stop()

	controller, err := core.NewController(schema.ShellConfig{
		TermType:    a.cfg.App.Shell.TermType,
		BufferBytes: a.cfg.App.Shell.BufferBytes,
	}, core.ControllerDeps{
		Transport: client,
		Terminal:  term,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = controller.Close() }()

	b := &browser.Browser{
		Terminal:         term,
		FS:               files,
		Shell:            controller,
		Conn:             client,
		States:           states,
		Logger:           log,
		Host:             a.cfg.Host,
		Port:             a.cfg.Port,
		Username:         a.cfg.Username,
		InitialPath:      initialPath,
		InitialSelection: initialSelection,
		DownloadDir:      a.cfg.App.Transfer.DownloadDir,
		ShowHidden:       a.cfg.App.Browser.ShowHidden,
		DirsFirst:        a.cfg.App.Browser.DirsFirst,
		Theme:            a.cfg.App.Browser.Theme,
	}
	return b.Run(ctx)
}

// resolveSigners collects private keys in precedence order: an explicit
// key file, a named vault identity, every vault identity, then the
// conventional ~/.ssh key files. An empty result is not an error; the
// dialer may still authenticate through the agent.
func (a *App) resolveSigners(log pslog.Logger) ([]ssh.Signer, error) {
	if a.cfg.IdentityFile != "" {
		signer, err := sshclient.LoadSignerFromFile(expandHome(a.cfg.IdentityFile))
		if err != nil {
			return nil, err
		}
		return []ssh.Signer{signer}, nil
	}

	store, err := a.openIdentityStore(log)
	if err != nil {
		return nil, err
	}

	if a.cfg.Identity != "" {
		if store == nil {
			return nil, fmt.Errorf("%w: %s", schema.ErrIdentityNotFound, a.cfg.Identity)
		}
		signer, err := store.LoadSigner(a.cfg.Identity)
		if err != nil {
			return nil, err
		}
		return []ssh.Signer{signer}, nil
	}

	var signers []ssh.Signer
	if store != nil {
		identities, err := store.List()
		if err != nil {
			log.Warn("identity list failed", "err", err)
		}
		for _, id := range identities {
			signer, err := store.LoadSigner(id.Name)
			if err != nil {
				log.Warn("identity unusable", "name", id.Name, "err", err)
				continue
			}
			signers = append(signers, signer)
		}
	}

	for _, name := range []string{"id_ed25519", "id_rsa"} {
		path := expandHome(filepath.Join("~", ".ssh", name))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		signer, err := sshclient.LoadSignerFromFile(path)
		if err != nil {
			log.Debug("default key skipped", "path", path, "err", err)
			continue
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

// openIdentityStore opens the vault when it already exists, or when a
// named identity demands it. A connect must not create state as a side
// effect of merely looking for keys.
func (a *App) openIdentityStore(log pslog.Logger) (*identity.Store, error) {
	storePath := a.cfg.App.SSH.KeyStorePath
	if storePath == "" {
		return nil, nil
	}
	if _, err := os.Stat(storePath); err != nil {
		if a.cfg.Identity == "" {
			return nil, nil
		}
	}
	return identity.NewStoreWithLogger(storePath, IdentityKeyDir(a.cfg.App), log)
}

func (a *App) initialBrowserState(states *persist.SessionStateStore, log pslog.Logger) (string, int) {
	if a.cfg.InitialPath != "" {
		return a.cfg.InitialPath, 0
	}
	state, ok, err := states.Load(a.cfg.Username, a.cfg.Host, a.cfg.Port)
	if err != nil {
		log.Warn("session state unavailable", "err", err)
		return "/", 0
	}
	if !ok || state.CurrentPath == "" {
		return "/", 0
	}
	return state.CurrentPath, state.SelectedIndex
}

// IdentityKeyDir is where the vault keeps per-identity key material.
func IdentityKeyDir(cfg appconfig.Config) string {
	return filepath.Join(cfg.StateDir, "keys")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
