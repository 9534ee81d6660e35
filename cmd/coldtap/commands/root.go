package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"coldtap/internal/app"
	"coldtap/internal/host"
	"coldtap/internal/transport"
)

var (
	home       string
	configPath string
	bridgeURL  string

	cfg  app.Config
	wire *app.HostWire
)

// commandTimeout bounds one complete CLI invocation against the signer.
const commandTimeout = 2 * time.Minute

func Execute() error {
	root := &cobra.Command{
		Use:   "coldtap",
		Short: "Host CLI for the coldtap NFC signer",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".coldtap")
			}
			if configPath == "" {
				configPath = filepath.Join(home, "coldtap.toml")
			}
			var err error
			cfg, err = app.LoadConfig(configPath, home)
			if err != nil {
				return err
			}
			if bridgeURL != "" {
				cfg.BridgeURL = bridgeURL
			}
			log := app.NewLogger(os.Stderr, cfg.LogLevel)
			wire, err = app.NewHostWire(cfg, log)
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.coldtap)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/coldtap.toml)")
	root.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "signer bridge URL (overrides config)")

	root.AddCommand(
		pairCmd(), infoCmd(), resumeCmd(),
		generateCmd(), restoreCmd(), showMnemonicCmd(),
		unlockCmd(), lockCmd(),
		addressCmd(), signCmd(),
		descriptorsCmd(), xpubCmd(), setDescriptorCmd(),
		fwUpdateCmd(), wipeCmd(),
	)
	return root.Execute()
}

// promptCode reads the pairing code shown on the signer display.
func promptCode(fingerprint string) (string, error) {
	fmt.Printf("Signer %s requests pairing.\nEnter the code on its display: ", fingerprint)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// withClient dials the bridge, handshakes and runs fn over the channel.
func withClient(fn func(ctx context.Context, c *host.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	t, err := transport.DialWS(ctx, cfg.BridgeURL, cfg.FrameCapacity)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.BridgeURL, err)
	}
	c := wire.NewClient(t)
	defer c.Close()

	if err := c.Connect(ctx, promptCode); err != nil {
		return err
	}
	return fn(ctx, c)
}
