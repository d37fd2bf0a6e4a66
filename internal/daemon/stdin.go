package daemon

import (
	"bufio"
	"io"
	"log/slog"

	"cshd/internal/wire"
)

// Bracketed paste markers. The daemon enables bracketed paste on its own
// terminal so pasted text arrives delimited instead of as a keystroke
// flood.
const (
	pasteStart   = "[200~"
	pasteEnd     = "[201~"
	enablePaste  = "\x1b[?2004h"
	disablePaste = "\x1b[?2004l"
)

// readInput decodes the controller's raw-mode stdin into input events.
// Pasted text becomes a fragment stream; everything else becomes one key
// event per rune. The channel is closed when stdin ends.
func readInput(r io.Reader, events chan<- *wire.InputEvent, logger *slog.Logger) {
	defer close(events)

	br := bufio.NewReader(r)
	for {
		ru, _, err := br.ReadRune()
		if err != nil {
			if err != io.EOF {
				logger.Warn("stdin read failed", "error", err)
			}
			return
		}

		// The paste-start marker arrives in the same terminal write as
		// its escape byte, so it is already buffered here. Peeking past
		// what is buffered would block, holding a lone escape keystroke
		// hostage until more input arrives.
		if ru == 0x1b && br.Buffered() >= len(pasteStart) {
			if peek, _ := br.Peek(len(pasteStart)); string(peek) == pasteStart {
				br.Discard(len(pasteStart))
				data, err := readPaste(br)
				if err != nil {
					logger.Warn("stdin ended mid-paste", "error", err)
					return
				}
				for _, ev := range wire.ChunkPaste(data) {
					events <- ev
				}
				continue
			}
		}

		events <- &wire.InputEvent{Key: &wire.KeyEvent{
			Code:  ru,
			Down:  true,
			Bytes: []byte(string(ru)),
		}}
	}
}

// readPaste consumes bytes up to the paste-end marker.
func readPaste(br *bufio.Reader) ([]byte, error) {
	var data []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0x1b {
			if peek, _ := br.Peek(len(pasteEnd)); string(peek) == pasteEnd {
				br.Discard(len(pasteEnd))
				return data, nil
			}
		}
		data = append(data, b)
	}
}
