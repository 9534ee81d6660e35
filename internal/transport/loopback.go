package transport

import (
	"context"
	"sync"

	"coldtap/internal/device"
	"coldtap/internal/domain"
)

// Loopback connects a host client directly to an in-process engine. Frames
// still pass through fragmentation and reassembly, so everything except the
// physical radio is exercised.
type Loopback struct {
	engine   *device.Engine
	capacity int

	mu    sync.Mutex
	queue [][]byte
}

// NewLoopback wraps engine in a transport with the given frame capacity.
func NewLoopback(engine *device.Engine, capacity int) *Loopback {
	return &Loopback{engine: engine, capacity: capacity}
}

// SendFrame hands a frame to the engine and queues whatever it answers.
func (l *Loopback) SendFrame(ctx context.Context, f []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := l.engine.HandleFrame(f)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.queue = append(l.queue, out...)
	l.mu.Unlock()
	return nil
}

// PollFrame pops the next queued response frame.
func (l *Loopback) PollFrame(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false, nil
	}
	f := l.queue[0]
	l.queue = l.queue[1:]
	return f, true, nil
}

// Capacity returns the frame capacity.
func (l *Loopback) Capacity() int { return l.capacity }

// Close is a no-op; the engine outlives the transport.
func (l *Loopback) Close() error { return nil }

// Compile-time assertion that Loopback implements domain.Transport.
var _ domain.Transport = (*Loopback)(nil)
