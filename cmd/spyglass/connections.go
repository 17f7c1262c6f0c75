package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/internal/appconfig"
	"pkt.systems/spyglass/internal/persist"
)

func newConnectionsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage saved connections",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newConnectionsListCmd(&cfgPath))
	cmd.AddCommand(newConnectionsRemoveCmd(&cfgPath))

	return cmd
}

func newConnectionsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConnectionStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			conns, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(conns) == 0 {
				_, _ = fmt.Fprintln(out, "no saved connections")
				return nil
			}
			for _, conn := range conns {
				line := fmt.Sprintf("%-16s %s", conn.Name, conn.DisplayName())
				if conn.IdentityFile != "" {
					line += "  (key: " + conn.IdentityFile + ")"
				}
				_, _ = fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newConnectionsRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConnectionStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed connection: %s\n", args[0])
			return nil
		},
	}
}

func openConnectionStore(cmd *cobra.Command, cfgPath string) (*persist.ConnectionStore, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return persist.NewConnectionStoreWithLogger(cfg.StateDir, pslog.Ctx(cmd.Context()))
}
