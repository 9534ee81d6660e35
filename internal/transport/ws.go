package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"coldtap/internal/device"
	"coldtap/internal/domain"
)

// pollReadTimeout bounds one PollFrame attempt on the websocket.
const pollReadTimeout = 50 * time.Millisecond

// WS is the host transport over a websocket connection to a signer bridge.
// Each frame travels as one binary message wrapped in an APDU.
type WS struct {
	conn     *websocket.Conn
	capacity int
	mu       sync.Mutex
}

// DialWS connects to a signer bridge at url.
func DialWS(ctx context.Context, url string, capacity int) (*WS, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &WS{conn: conn, capacity: capacity}, nil
}

// SendFrame writes one frame as a command APDU.
func (t *WS) SendFrame(ctx context.Context, f []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := wrapCommand(f)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, raw)
}

// PollFrame reads one response APDU, reporting ok=false on a quiet socket.
func (t *WS) PollFrame(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	deadline := time.Now().Add(pollReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, false, err
	}
	_, raw, err := t.conn.ReadMessage()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, false, nil
		}
		return nil, false, err
	}
	f, err := unwrapResponse(raw)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// Capacity returns the frame capacity negotiated out of band.
func (t *WS) Capacity() int { return t.capacity }

// Close closes the websocket.
func (t *WS) Close() error { return t.conn.Close() }

// Compile-time assertion that WS implements domain.Transport.
var _ domain.Transport = (*WS)(nil)

// Bridge exposes an engine over websocket for the signer simulator. One
// connection is one tap: engine session state persists across connections,
// exactly as it would across physical taps.
type Bridge struct {
	engine   *device.Engine
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewBridge wraps engine in a websocket handler.
func NewBridge(engine *device.Engine, log zerolog.Logger) *Bridge {
	return &Bridge{
		engine: engine,
		log:    log.With().Str("component", "bridge").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the connection and pumps frames through the engine.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()
	b.log.Info().Str("remote", r.RemoteAddr).Msg("tap started")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			b.log.Info().Msg("tap ended")
			return
		}
		f, err := unwrapCommand(raw)
		if err != nil {
			b.log.Warn().Err(err).Msg("bad apdu")
			continue
		}
		out, err := b.engine.HandleFrame(f)
		if err != nil {
			// Protocol-level failures have no in-channel reply; the host
			// re-handshakes. Signal with an error status word.
			b.log.Warn().Err(err).Msg("frame rejected")
			if raw, werr := wrapStatus(0x6F, 0x00); werr == nil {
				_ = conn.WriteMessage(websocket.BinaryMessage, raw)
			}
			continue
		}
		for _, reply := range out {
			raw, err := wrapResponse(reply)
			if err != nil {
				b.log.Error().Err(err).Msg("wrap failed")
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
				return
			}
		}
	}
}
