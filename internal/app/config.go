package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"coldtap/internal/frame"
	"coldtap/internal/protocol/channel"
)

// Config holds runtime wiring options, loadable from a TOML file.
type Config struct {
	// DataDir is where identities, pairings and the wallet secret live.
	DataDir string `toml:"data_dir"`
	// BridgeURL is the websocket endpoint of the signer bridge.
	BridgeURL string `toml:"bridge_url"`
	// FrameCapacity is the maximum frame size the transport carries.
	FrameCapacity int `toml:"frame_capacity"`
	// ReorderWindow is the secure-channel reorder tolerance.
	ReorderWindow uint64 `toml:"reorder_window"`
	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the config used when no file exists.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:       dataDir,
		BridgeURL:     "ws://127.0.0.1:9191/nfc",
		FrameCapacity: 255,
		ReorderWindow: 0,
		LogLevel:      "info",
	}
}

// LoadConfig reads path, filling unset fields with defaults. A missing file
// is not an error; the defaults apply.
func LoadConfig(path, dataDir string) (Config, error) {
	cfg := DefaultConfig(dataDir)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.validate()
		}
		return cfg, fmt.Errorf("app: config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.FrameCapacity < frame.MinCapacity {
		return fmt.Errorf("app: frame_capacity %d below minimum %d", c.FrameCapacity, frame.MinCapacity)
	}
	if c.ReorderWindow > channel.MaxReorderWindow {
		return fmt.Errorf("app: reorder_window %d above maximum %d", c.ReorderWindow, channel.MaxReorderWindow)
	}
	if c.DataDir == "" {
		return errors.New("app: data_dir is required")
	}
	return nil
}
