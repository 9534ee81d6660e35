package app

import (
	"os"

	"github.com/rs/zerolog"

	"coldtap/internal/device"
	"coldtap/internal/domain"
	"coldtap/internal/host"
	"coldtap/internal/store"
	"coldtap/internal/wallet"
)

// SignerWire bundles the signer-side dependency graph.
type SignerWire struct {
	Engine   *device.Engine
	Pairings *store.PairingFileStore
	Wallet   *wallet.Wallet
	Log      zerolog.Logger
}

// NewSignerWire constructs the signer graph from cfg. confirm is the
// display/approval boundary, typically the terminal for the simulator.
func NewSignerWire(cfg Config, confirm domain.Confirmer, log zerolog.Logger) (*SignerWire, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	pairings := store.NewPairingFileStore(cfg.DataDir)
	secrets := store.NewSecretFileStore(cfg.DataDir)
	firmware := store.NewFirmwareFileStore(cfg.DataDir)

	w := wallet.New(secrets, log)
	dispatcher := device.NewDispatcher(w, confirm, firmware, pairings, log)

	priv, pub, err := store.NewIdentityFileStore(cfg.DataDir).LoadOrCreate()
	if err != nil {
		return nil, err
	}
	engine := device.NewEngine(priv, pub, pairings, dispatcher, confirm,
		device.Config{FrameCapacity: cfg.FrameCapacity, ReorderWindow: cfg.ReorderWindow}, log)

	return &SignerWire{Engine: engine, Pairings: pairings, Wallet: w, Log: log}, nil
}

// HostWire bundles the host-side dependency graph. The transport is supplied
// per connection by the command layer.
type HostWire struct {
	Trust *host.TrustStore
	Log   zerolog.Logger

	priv domain.X25519Private
	pub  domain.X25519Public
	cfg  Config
}

// NewHostWire constructs the host graph from cfg.
func NewHostWire(cfg Config, log zerolog.Logger) (*HostWire, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	priv, pub, err := store.NewIdentityFileStore(cfg.DataDir).LoadOrCreate()
	if err != nil {
		return nil, err
	}
	return &HostWire{
		Trust: host.NewTrustStore(cfg.DataDir),
		Log:   log,
		priv:  priv,
		pub:   pub,
		cfg:   cfg,
	}, nil
}

// NewClient builds a host client over transport.
func (w *HostWire) NewClient(transport domain.Transport) *host.Client {
	return host.NewClient(transport, w.Trust, w.priv, w.pub, w.cfg.ReorderWindow, w.Log)
}
