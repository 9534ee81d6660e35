package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"coldtap/internal/host"
)

var (
	addressIndex uint32
	outPath      string
	firstAddress string
)

func addressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Display and verify a receive address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				addr, err := c.Address(ctx, addressIndex)
				if err != nil {
					return err
				}
				fmt.Println(addr)
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&addressIndex, "index", 0, "receive address index")
	return cmd
}

// readPsbtFile accepts both raw binary and base64 PSBT files.
func readPsbtFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(raw)); err == nil {
		return decoded, nil
	}
	return raw, nil
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <psbt-file>",
		Short: "Sign a PSBT after on-device review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			psbt, err := readPsbtFile(args[0])
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, c *host.Client) error {
				signed, err := c.SignPsbt(ctx, psbt)
				if err != nil {
					return err
				}
				if outPath == "" {
					fmt.Println(base64.StdEncoding.EncodeToString(signed))
					return nil
				}
				if err := os.WriteFile(outPath, signed, 0o600); err != nil {
					return err
				}
				fmt.Printf("Signed PSBT written to %s.\n", outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the signed PSBT here (default: base64 to stdout)")
	return cmd
}

func descriptorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "descriptors",
		Short: "Print the watch-only wallet descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				external, internal, err := c.Descriptors(ctx)
				if err != nil {
					return err
				}
				fmt.Println(external)
				if internal != "" {
					fmt.Println(internal)
				}
				return nil
			})
		},
	}
}

func xpubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "xpub <path>",
		Short: "Export an attested extended public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				xpub, bsms, err := c.Xpub(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(xpub)
				fmt.Printf("BSMS %s  token %s  %s\n", bsms.Version, bsms.Token, bsms.Description)
				return nil
			})
		},
	}
}

func setDescriptorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-descriptor <descriptor>",
		Short: "Apply a wallet descriptor on the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *host.Client) error {
				if err := c.SetDescriptor(ctx, args[0], firstAddress); err != nil {
					return err
				}
				fmt.Println("Descriptor applied.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&firstAddress, "first-address", "", "expected first address for on-device review")
	return cmd
}

func fwUpdateCmd() *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "fw-update <image-file>",
		Short: "Stream a firmware image to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, c *host.Client) error {
				if err := c.UpdateFirmware(ctx, image, chunkSize); err != nil {
					return err
				}
				fmt.Printf("Firmware staged: %d bytes.\n", len(image))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1024, "bytes per firmware chunk")
	return cmd
}
