// Package wire defines the framed protocol spoken between the daemon and
// its session clients: a uint32 big-endian length prefix, one tag byte,
// then a msgpack-encoded payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Tag identifies the payload type of a frame.
type Tag byte

const (
	// TagInput carries an InputEvent from daemon to client.
	TagInput Tag = 1
	// TagConnectResult is sent exactly once by the client after connecting.
	TagConnectResult Tag = 2
	// TagHeartbeat is sent periodically by the client; empty payload.
	TagHeartbeat Tag = 3
)

// MaxFrameSize bounds a single frame on the wire. Large pastes are split
// into fragments well below this; anything bigger indicates a corrupt
// stream.
const MaxFrameSize = 64 * 1024

// PasteFragmentSize bounds the payload of a single paste fragment.
// Unbounded frames caused instability under large pastes, so senders must
// chunk and receivers reassemble.
const PasteFragmentSize = 4096

// Frame is one length-prefixed message.
type Frame struct {
	Tag     Tag
	Payload []byte
}

// InputEvent is the tagged union carried by TagInput frames. Exactly one
// of Key and Paste is set.
type InputEvent struct {
	Key   *KeyEvent   `msgpack:"key,omitempty"`
	Paste *PasteChunk `msgpack:"paste,omitempty"`
}

// KeyEvent mirrors one captured keystroke.
type KeyEvent struct {
	Code      rune   `msgpack:"code"`
	Down      bool   `msgpack:"down"`
	Modifiers uint32 `msgpack:"mods"`
	// Bytes is the raw byte sequence to replay, covering keys (arrows,
	// function keys) that have no single-rune representation.
	Bytes []byte `msgpack:"bytes,omitempty"`
}

// PasteChunk is one bounded fragment of a paste. Fragments of one paste
// are delivered in order; Final is true only on the last one.
type PasteChunk struct {
	Data  []byte `msgpack:"data"`
	Final bool   `msgpack:"final"`
}

// ConnectResult reports whether the client managed to start its session
// process.
type ConnectResult struct {
	OK     bool   `msgpack:"ok"`
	Reason string `msgpack:"reason,omitempty"`
}

// EncodeInput builds a TagInput frame from an event.
func EncodeInput(ev *InputEvent) (Frame, error) {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode input event: %w", err)
	}
	return Frame{Tag: TagInput, Payload: payload}, nil
}

// DecodeInput parses the payload of a TagInput frame.
func DecodeInput(payload []byte) (*InputEvent, error) {
	var ev InputEvent
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode input event: %w", err)
	}
	return &ev, nil
}

// EncodeConnectResult builds a TagConnectResult frame.
func EncodeConnectResult(res *ConnectResult) (Frame, error) {
	payload, err := msgpack.Marshal(res)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode connect result: %w", err)
	}
	return Frame{Tag: TagConnectResult, Payload: payload}, nil
}

// DecodeConnectResult parses the payload of a TagConnectResult frame.
func DecodeConnectResult(payload []byte) (*ConnectResult, error) {
	var res ConnectResult
	if err := msgpack.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode connect result: %w", err)
	}
	return &res, nil
}

// HeartbeatFrame returns the canonical heartbeat frame.
func HeartbeatFrame() Frame {
	return Frame{Tag: TagHeartbeat}
}

// WriteFrame writes a single frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload)+1 > MaxFrameSize {
		return fmt.Errorf("frame payload too large: %d bytes", len(f.Payload))
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(f.Payload)+1))
	header[4] = byte(f.Tag)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("failed to write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a single frame from r. Returns io.EOF unwrapped when the
// stream ends cleanly between frames.
func ReadFrame(r io.Reader) (Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 || length > MaxFrameSize {
		return Frame{}, fmt.Errorf("invalid frame length: %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("failed to read frame body: %w", err)
	}

	return Frame{Tag: Tag(body[0]), Payload: body[1:]}, nil
}

// ChunkPaste splits pasted bytes into bounded PasteChunk events, in order,
// with Final set only on the last fragment. Empty input still produces one
// final empty chunk so the receiver can close out the paste.
func ChunkPaste(data []byte) []*InputEvent {
	if len(data) == 0 {
		return []*InputEvent{{Paste: &PasteChunk{Final: true}}}
	}

	var events []*InputEvent
	for offset := 0; offset < len(data); offset += PasteFragmentSize {
		end := offset + PasteFragmentSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-offset)
		copy(chunk, data[offset:end])
		events = append(events, &InputEvent{Paste: &PasteChunk{
			Data:  chunk,
			Final: end == len(data),
		}})
	}
	return events
}
