package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"coldtap/internal/domain"
	"coldtap/internal/host"
)

var (
	passphrase string
	network    string
	words      int
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a fresh wallet on the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			n := domain.Network(network)
			if !n.Valid() {
				return fmt.Errorf("unknown network %q", network)
			}
			return withClient(func(ctx context.Context, c *host.Client) error {
				mnemonic, err := c.GenerateMnemonic(ctx, words, n, passphrase)
				if err != nil {
					return err
				}
				fmt.Println("Wallet created. Write these words down:")
				fmt.Println(mnemonic)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the wallet secret")
	cmd.Flags().StringVar(&network, "network", "bitcoin", "bitcoin, testnet, signet or regtest")
	cmd.Flags().IntVar(&words, "words", 24, "mnemonic length: 12, 15, 18, 21 or 24")
	return cmd
}

func restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <mnemonic>",
		Short: "Import a mnemonic onto the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			n := domain.Network(network)
			if !n.Valid() {
				return fmt.Errorf("unknown network %q", network)
			}
			return withClient(func(ctx context.Context, c *host.Client) error {
				if err := c.RestoreMnemonic(ctx, args[0], n, passphrase); err != nil {
					return err
				}
				fmt.Println("Wallet restored.")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the wallet secret")
	cmd.Flags().StringVar(&network, "network", "bitcoin", "bitcoin, testnet, signet or regtest")
	return cmd
}

func showMnemonicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-mnemonic",
		Short: "Reveal the mnemonic after on-device confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				mnemonic, err := c.ShowMnemonic(ctx)
				if err != nil {
					return err
				}
				fmt.Println(mnemonic)
				return nil
			})
		},
	}
}

func unlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Decrypt the wallet secret into device memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			return withClient(func(ctx context.Context, c *host.Client) error {
				if err := c.Unlock(ctx, passphrase); err != nil {
					return err
				}
				fmt.Println("Unlocked.")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "wallet passphrase")
	return cmd
}

func lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Drop the wallet secret from device memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				if err := c.Lock(ctx); err != nil {
					return err
				}
				fmt.Println("Locked.")
				return nil
			})
		},
	}
}

func wipeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wipe",
		Short: "Erase the device: wallet secret and all pairings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				if err := c.Wipe(ctx); err != nil {
					return err
				}
				fmt.Println("Device wiped.")
				return nil
			})
		},
	}
}
