// signer-sim runs the signer engine behind a websocket bridge, standing in
// for the physical card during development. The terminal plays the device
// display: confirmations and pairing codes appear on stdout and are approved
// on stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"coldtap/internal/app"
	"coldtap/internal/domain"
	"coldtap/internal/transport"
)

// terminalConfirmer renders confirmations on the terminal and reads y/n.
// autoApprove skips the prompt, for scripted use.
type terminalConfirmer struct {
	mu          sync.Mutex
	autoApprove bool
	in          *bufio.Reader
}

func (c *terminalConfirmer) Confirm(p domain.Confirmation) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Printf("\n== %s ==\n", p.Title)
	for _, line := range p.Lines {
		fmt.Printf("   %s\n", line)
	}
	if c.autoApprove {
		fmt.Println("   [auto-approved]")
		return true, nil
	}
	fmt.Print("Approve? [y/N] ")
	line, err := c.in.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func main() {
	var (
		home        = flag.String("home", "", "data dir (default ~/.coldtap-sim)")
		listen      = flag.String("listen", "127.0.0.1:9191", "bridge listen address")
		autoApprove = flag.Bool("auto-approve", false, "approve every confirmation without prompting")
	)
	flag.Parse()

	if *home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		*home = filepath.Join(dir, ".coldtap-sim")
	}

	cfg, err := app.LoadConfig(filepath.Join(*home, "coldtap.toml"), *home)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := app.NewLogger(os.Stderr, cfg.LogLevel)

	confirm := &terminalConfirmer{autoApprove: *autoApprove, in: bufio.NewReader(os.Stdin)}
	wire, err := app.NewSignerWire(cfg, confirm, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}

	mux := http.NewServeMux()
	mux.Handle("/nfc", transport.NewBridge(wire.Engine, log))

	log.Info().Str("listen", *listen).Msg("signer simulator up")
	if err := http.ListenAndServe(*listen, mux); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
