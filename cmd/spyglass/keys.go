package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/spyglass"
	"pkt.systems/spyglass/internal/appconfig"
	"pkt.systems/spyglass/internal/identity"
)

func newKeysCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage client keys in the encrypted key store",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newKeysImportCmd(&cfgPath))
	cmd.AddCommand(newKeysGenerateCmd(&cfgPath))
	cmd.AddCommand(newKeysListCmd(&cfgPath))
	cmd.AddCommand(newKeysRemoveCmd(&cfgPath))

	return cmd
}

func newKeysImportCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <name> <private-key-file>",
		Short: "Import an existing private key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openIdentityStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			pub, err := store.Import(args[0], data)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported key %s\n%s\n", args[0], pub)
			return nil
		},
	}
}

func newKeysGenerateCmd(cfgPath *string) *cobra.Command {
	var keyType string
	var keyBits int
	cmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Generate a new private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openIdentityStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			pub, err := store.Generate(args[0], keyType, keyBits)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "generated key %s\n%s\n", args[0], pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyType, "type", identity.KeyTypeEd25519, "key type (ed25519 or rsa)")
	cmd.Flags().IntVar(&keyBits, "bits", identity.DefaultRSABits, "key size when using rsa")
	return cmd
}

func newKeysListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openIdentityStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			ids, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				_, _ = fmt.Fprintln(out, "no keys")
				return nil
			}
			for _, id := range ids {
				_, _ = fmt.Fprintf(out, "%-16s %s\n", id.Name, id.PublicKey)
			}
			return nil
		},
	}
}

func newKeysRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openIdentityStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed key: %s\n", args[0])
			return nil
		},
	}
}

func openIdentityStore(cmd *cobra.Command, cfgPath string) (*identity.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return identity.NewStoreWithLogger(cfg.SSH.KeyStorePath, spyglass.IdentityKeyDir(cfg), pslog.Ctx(cmd.Context()))
}
