// Package frame splits logical messages into transport-sized chunks and
// reassembles them. It has no cryptographic knowledge: a truncated or
// inconsistent sequence is an assembly failure, handled by discarding and
// retrying at the message level.
package frame

import "errors"

// Header layout, one byte per frame:
//
//	bit 7   FINAL: this frame completes the message
//	bits 0-6 message index modulo 128
//
// The index ties frames of one logical message together. A frame carrying a
// different index than the partial buffer signals that the sender discarded
// the prior message; the reassembler drops the buffer and starts over.
const (
	headerSize = 1
	finalFlag  = 0x80
	indexMask  = 0x7f
)

// MinCapacity is the smallest usable frame capacity: header plus one byte.
const MinCapacity = headerSize + 1

var (
	// ErrCapacity means the negotiated frame capacity is too small.
	ErrCapacity = errors.New("frame: capacity below minimum")
	// ErrShortFrame means a frame had no header byte.
	ErrShortFrame = errors.New("frame: short frame")
)

// Frame is one transport-sized chunk of a logical message.
type Frame struct {
	Index   uint8
	Final   bool
	Payload []byte
}

// Encode renders the frame into its wire form.
func (f Frame) Encode() []byte {
	out := make([]byte, headerSize+len(f.Payload))
	out[0] = f.Index & indexMask
	if f.Final {
		out[0] |= finalFlag
	}
	copy(out[headerSize:], f.Payload)
	return out
}

// Decode parses a raw frame.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < headerSize {
		return Frame{}, ErrShortFrame
	}
	return Frame{
		Index:   raw[0] & indexMask,
		Final:   raw[0]&finalFlag != 0,
		Payload: raw[headerSize:],
	}, nil
}

// Fragment splits message into frames of at most capacity bytes, tagged with
// index. A zero-length message produces a single empty final frame; the
// single-chunk case needs no separate path.
func Fragment(message []byte, capacity int, index uint8) ([]Frame, error) {
	if capacity < MinCapacity {
		return nil, ErrCapacity
	}
	chunk := capacity - headerSize
	var frames []Frame
	for {
		n := len(message)
		if n > chunk {
			n = chunk
		}
		final := n == len(message)
		frames = append(frames, Frame{
			Index:   index & indexMask,
			Final:   final,
			Payload: message[:n],
		})
		message = message[n:]
		if final {
			return frames, nil
		}
	}
}

// Reassembler accumulates frames until a terminal frame completes a message.
type Reassembler struct {
	buf     []byte
	index   uint8
	partial bool
}

// Push feeds one frame. It returns the complete message and true when f is
// terminal; otherwise it buffers and returns (nil, false). A new index while
// a partial message is buffered discards the old buffer silently — the
// sender may have cancelled.
func (r *Reassembler) Push(f Frame) ([]byte, bool) {
	if r.partial && f.Index != r.index {
		r.buf = r.buf[:0]
		r.partial = false
	}
	if !r.partial {
		r.index = f.Index
		r.partial = true
	}
	r.buf = append(r.buf, f.Payload...)
	if !f.Final {
		return nil, false
	}
	msg := make([]byte, len(r.buf))
	copy(msg, r.buf)
	r.buf = r.buf[:0]
	r.partial = false
	return msg, true
}

// Reset drops any buffered partial message.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.partial = false
}

// Pending reports whether a partial message is buffered.
func (r *Reassembler) Pending() bool { return r.partial }
