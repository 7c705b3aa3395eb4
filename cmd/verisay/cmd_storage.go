package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"verisay/go-client/internal/composition/client"
	"verisay/go-client/internal/config"
	"verisay/go-client/internal/securestore"
)

func newStorageCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Manage the local storage secret",
	}
	cmd.AddCommand(newStorageSecretCmd(c))
	return cmd
}

func newStorageSecretCmd(c *cli) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "new-secret",
		Short: "Generate a storage passphrase",
		Long: `Prints a fresh mnemonic passphrase. With --write it becomes the storage.key
of a data directory that has no key yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := securestore.NewPassphrase()
			if err != nil {
				return err
			}
			if write {
				cfg, err := config.LoadFromPath(c.configPath)
				if err != nil {
					return err
				}
				keyPath := filepath.Join(cfg.Storage.DataDir, "storage.key")
				if _, err := os.Stat(keyPath); !errors.Is(err, fs.ErrNotExist) {
					return usageError{errors.New(keyPath + " already exists")}
				}
				if err := client.WriteStorageKey(cfg.Storage.DataDir, secret); err != nil {
					return err
				}
			}
			c.printf("%s\n", secret)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "store the passphrase as the data directory key")
	return cmd
}
