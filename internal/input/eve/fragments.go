package eve

import (
	"bytes"

	"minisiem/pkg/models"
)

// fragmentBuffer reassembles a record that the producer split across
// several physical lines. Each failed line is appended and the whole
// concatenation is retried; past max fragments the buffer is dropped.
type fragmentBuffer struct {
	parts [][]byte
	max   int
}

func newFragmentBuffer(max int) *fragmentBuffer {
	return &fragmentBuffer{max: max}
}

// feed consumes one raw line. ok is true when an event was produced;
// discarded is true when the buffer was dropped as unrecoverable.
func (b *fragmentBuffer) feed(raw []byte) (event models.Event, ok bool, discarded bool) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil, false, false
	}

	if event, err := decodeEvent(line); err == nil {
		b.reset()
		return event, true, false
	}

	b.parts = append(b.parts, append([]byte(nil), line...))
	if event, err := decodeEvent(bytes.Join(b.parts, nil)); err == nil {
		b.reset()
		return event, true, false
	}

	if len(b.parts) > b.max {
		b.reset()
		return nil, false, true
	}
	return nil, false, false
}

func (b *fragmentBuffer) len() int {
	return len(b.parts)
}

func (b *fragmentBuffer) reset() {
	b.parts = nil
}
