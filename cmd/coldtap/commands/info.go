package commands

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"coldtap/internal/host"
)

func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Handshake with a signer and pin its identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				if c.Resumed() {
					fmt.Printf("Already paired with signer %s.\n", c.SignerFingerprint())
					return nil
				}
				fmt.Printf("Paired with signer %s.\n", c.SignerFingerprint())
				return nil
			})
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print device status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				info, err := c.Info(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("version:     %s\n", info.Version)
				fmt.Printf("initialized: %v\n", info.Initialized)
				fmt.Printf("unlocked:    %v\n", info.Unlocked)
				if info.Unlocked {
					fmt.Printf("network:     %s\n", info.Network)
					fmt.Printf("fingerprint: %s\n", hex.EncodeToString(info.Fingerprint))
				}
				return nil
			})
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Query the pending multi-step operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				pending, err := c.Resume(ctx)
				if err != nil {
					return err
				}
				if pending == "" {
					fmt.Println("idle")
				} else {
					fmt.Printf("pending: %s\n", pending)
				}
				return nil
			})
		},
	}
}
