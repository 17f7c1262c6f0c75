package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/spyglass"
	"pkt.systems/spyglass/internal/appconfig"
	"pkt.systems/spyglass/internal/persist"
	"pkt.systems/spyglass/schema"
)

func newConnectCmd() *cobra.Command {
	var cfgPath string
	var o connectOverrides
	cmd := &cobra.Command{
		Use:   "connect [user@host[:port] | name]",
		Short: "Connect to a remote host and browse its files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			store, err := persist.NewConnectionStoreWithLogger(cfg.StateDir, logger)
			if err != nil {
				return err
			}
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			session, err := resolveConnectTarget(cfg, store, arg, o, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app, err := spyglass.New(session, spyglass.Deps{Logger: logger})
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().IntVarP(&o.Port, "port", "p", 0, "remote ssh port")
	cmd.Flags().StringVarP(&o.IdentityFile, "identity", "i", "", "path to a private key file")
	cmd.Flags().StringVar(&o.Identity, "key", "", "named key from the spyglass key store")
	cmd.Flags().StringVar(&o.InitialPath, "path", "", "remote directory to start in")
	cmd.Flags().StringVar(&o.SaveAs, "save", "", "save this connection under a name")
	cmd.Flags().BoolVar(&o.Insecure, "insecure", false, "skip host key verification")
	return cmd
}

type connectOverrides struct {
	Port         int
	IdentityFile string
	Identity     string
	InitialPath  string
	SaveAs       string
	Insecure     bool
}

// resolveConnectTarget turns a destination argument or saved connection
// name into a session config. A bare name (no @ or :) is looked up in
// the store first; an empty argument opens the saved-connection picker.
func resolveConnectTarget(cfg appconfig.Config, store *persist.ConnectionStore, arg string, o connectOverrides, in io.Reader, out io.Writer) (spyglass.Config, error) {
	var username, host, identityFile string
	var port int

	switch {
	case arg == "":
		conn, err := pickSavedConnection(store, in, out)
		if err != nil {
			return spyglass.Config{}, err
		}
		username, host, port, identityFile = conn.Username, conn.Host, conn.Port, conn.IdentityFile
	case !strings.ContainsAny(arg, "@:"):
		conn, err := store.Get(arg)
		if err == nil {
			username, host, port, identityFile = conn.Username, conn.Host, conn.Port, conn.IdentityFile
			break
		}
		if !errors.Is(err, schema.ErrConnectionNotFound) {
			return spyglass.Config{}, err
		}
		fallthrough
	default:
		var err error
		username, host, port, err = schema.ParseDestination(arg)
		if err != nil {
			return spyglass.Config{}, fmt.Errorf("%w: %s", err, arg)
		}
	}

	if o.Port != 0 {
		port = o.Port
	}
	if port == 0 {
		port = cfg.SSH.Port
	}
	if port == 0 {
		port = schema.DefaultPort
	}
	if o.IdentityFile != "" {
		identityFile = o.IdentityFile
	}

	if o.SaveAs != "" {
		err := store.Upsert(schema.SavedConnection{
			Name:         o.SaveAs,
			Host:         host,
			Port:         port,
			Username:     username,
			IdentityFile: identityFile,
		})
		if err != nil {
			return spyglass.Config{}, err
		}
	}

	return spyglass.Config{
		App:          cfg,
		Host:         host,
		Port:         port,
		Username:     username,
		Identity:     o.Identity,
		IdentityFile: identityFile,
		InitialPath:  o.InitialPath,
		Insecure:     o.Insecure,
	}, nil
}

func pickSavedConnection(store *persist.ConnectionStore, in io.Reader, out io.Writer) (schema.SavedConnection, error) {
	conns, err := store.List()
	if err != nil {
		return schema.SavedConnection{}, err
	}
	if len(conns) == 0 {
		return schema.SavedConnection{}, errors.New("no saved connections; pass a destination like user@host")
	}
	_, _ = fmt.Fprintln(out, "saved connections:")
	for i, conn := range conns {
		_, _ = fmt.Fprintf(out, "%3d) %-16s %s\n", i+1, conn.Name, conn.DisplayName())
	}
	_, _ = fmt.Fprint(out, "connect to: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return schema.SavedConnection{}, fmt.Errorf("read selection: %w", err)
	}
	choice := strings.TrimSpace(line)
	if idx, err := strconv.Atoi(choice); err == nil {
		if idx < 1 || idx > len(conns) {
			return schema.SavedConnection{}, fmt.Errorf("selection %d out of range", idx)
		}
		return conns[idx-1], nil
	}
	for _, conn := range conns {
		if conn.Name == choice {
			return conn, nil
		}
	}
	return schema.SavedConnection{}, fmt.Errorf("unknown selection %q", choice)
}
