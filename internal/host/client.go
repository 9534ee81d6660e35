package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"coldtap/internal/crypto"
	"coldtap/internal/domain"
	"coldtap/internal/frame"
	"coldtap/internal/protocol/channel"
	"coldtap/internal/protocol/handshake"
	"coldtap/internal/wire"
)

// pollInterval paces PollFrame retries on transports that cannot block.
const pollInterval = 5 * time.Millisecond

var (
	// ErrNotConnected means a command was issued before Connect.
	ErrNotConnected = errors.New("host: not connected")
	// ErrBadReply means the signer's reply could not be parsed.
	ErrBadReply = errors.New("host: malformed reply")
)

// RemoteError is a structured failure reported by the signer. The session
// stays usable; only the command failed.
type RemoteError struct {
	Kind   domain.ErrorKind
	Detail string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("signer: %s: %s", e.Kind, e.Detail)
}

// CodePrompt asks the user for the pairing code currently displayed on the
// signer identified by fingerprint.
type CodePrompt func(fingerprint string) (string, error)

// Client is the host endpoint of the secure channel.
type Client struct {
	transport domain.Transport
	trust     *TrustStore
	log       zerolog.Logger

	staticPriv domain.X25519Private
	staticPub  domain.X25519Public
	window     uint64

	ch       *channel.SecureChannel
	reasm    frame.Reassembler
	index    uint8
	signer   domain.X25519Public
	signerFP string
	resumed  bool
}

// NewClient builds a client around the host identity and transport. window is
// the secure-channel reorder tolerance.
func NewClient(transport domain.Transport, trust *TrustStore,
	priv domain.X25519Private, pub domain.X25519Public,
	window uint64, log zerolog.Logger) *Client {
	return &Client{
		transport:  transport,
		trust:      trust,
		staticPriv: priv,
		staticPub:  pub,
		window:     window,
		log:        log.With().Str("component", "host").Logger(),
	}
}

// SignerFingerprint identifies the connected signer.
func (c *Client) SignerFingerprint() string { return c.signerFP }

// Resumed reports whether the last Connect took the resumption path.
func (c *Client) Resumed() bool { return c.resumed }

// pairingID is the resumption claim: a stable label both sides derive from
// the host static, so it never needs to travel in a pairing response.
func (c *Client) pairingID() string {
	return crypto.Fingerprint(c.staticPub.Slice())
}

// Connect runs the handshake. On first contact with a signer, prompt is
// invoked with the signer fingerprint and must return the code shown on the
// device.
func (c *Client) Connect(ctx context.Context, prompt CodePrompt) error {
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}

	init := handshake.NewInitiator(c.staticPriv, c.staticPub, c.pairingID())
	hello, err := init.Hello()
	if err != nil {
		return err
	}
	if err := c.sendMessage(ctx, wire.ClassHandshake, hello); err != nil {
		return err
	}

	accept, err := c.recvMessage(ctx, wire.ClassHandshake)
	if err != nil {
		return err
	}
	needsCode, err := init.ReadAccept(accept)
	if err != nil {
		return err
	}

	signer := init.SignerStatic()
	fp := crypto.Fingerprint(signer.Slice())
	if err := c.trust.Check(fp, signer); err != nil {
		return err
	}

	code := ""
	if needsCode {
		if prompt == nil {
			return fmt.Errorf("host: signer requires pairing and no code prompt is available")
		}
		if code, err = prompt(fp); err != nil {
			return err
		}
	}

	finish, result, err := init.Finish(code)
	if err != nil {
		return err
	}
	if err := c.sendMessage(ctx, wire.ClassHandshake, finish); err != nil {
		return err
	}

	ch, err := channel.New(result.Keys, c.window)
	result.Keys.Zero()
	if err != nil {
		return err
	}
	c.ch = ch
	c.signer = result.PeerStatic
	c.signerFP = fp
	c.resumed = result.Resumed
	if !result.Resumed {
		if err := c.trust.Pin(fp, result.PeerStatic, ""); err != nil {
			return err
		}
	}
	c.log.Info().Str("signer", fp).Bool("resumed", result.Resumed).Msg("connected")
	return nil
}

// Close tears down the session and the transport.
func (c *Client) Close() error {
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	return c.transport.Close()
}

// Do runs one command through the channel and returns the typed response.
// Structured signer failures come back as *RemoteError.
func (c *Client) Do(ctx context.Context, cmd domain.Command) (domain.Response, error) {
	if c.ch == nil {
		return nil, ErrNotConnected
	}
	encoded, err := wire.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	sealed, err := c.ch.Seal(encoded)
	if err != nil {
		return nil, err
	}
	if err := c.sendMessage(ctx, wire.ClassSealed, sealed); err != nil {
		return nil, err
	}
	reply, err := c.recvMessage(ctx, wire.ClassSealed)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.ch.Open(reply)
	if err != nil {
		// Crypto failure is terminal for the session.
		c.ch.Close()
		c.ch = nil
		return nil, err
	}
	resp, err := wire.DecodeResponse(plaintext)
	if err != nil {
		return nil, err
	}
	if er, ok := resp.(domain.ErrorReply); ok {
		return nil, &RemoteError{Kind: er.Kind, Detail: er.Detail}
	}
	return resp, nil
}

func (c *Client) sendMessage(ctx context.Context, class byte, body []byte) error {
	msg := make([]byte, 0, 1+len(body))
	msg = append(msg, class)
	msg = append(msg, body...)
	frames, err := frame.Fragment(msg, c.transport.Capacity(), c.index)
	if err != nil {
		return err
	}
	c.index++
	for _, f := range frames {
		if err := c.transport.SendFrame(ctx, f.Encode()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) recvMessage(ctx context.Context, wantClass byte) ([]byte, error) {
	c.reasm.Reset()
	for {
		raw, ok, err := c.transport.PollFrame(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}
		f, err := frame.Decode(raw)
		if err != nil {
			return nil, err
		}
		msg, done := c.reasm.Push(f)
		if !done {
			continue
		}
		if len(msg) == 0 || msg[0] != wantClass {
			return nil, ErrBadReply
		}
		return msg[1:], nil
	}
}
