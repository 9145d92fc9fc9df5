package terminalhub

import (
	"strings"
	"time"
)

// coalesceWindow and coalesceBurstBytes implement spec §4.6 "Input
// coalescing": buffer client input for up to 22ms or until a burst of at
// least 768 bytes or a control character appears, whichever comes first.
const (
	coalesceWindow     = 22 * time.Millisecond
	coalesceBurstBytes = 768
	maxWriteChunk      = 16 * 1024
)

// controlTriggers are the bytes that force an immediate flush regardless
// of the coalescing window (spec §4.6: CR, LF, TAB, Ctrl-C, Ctrl-D, ESC).
const controlTriggers = "\x03\x04\x1b\r\n\t"

// inputCoalescer buffers raw terminal input and reports when it should be
// flushed to the session. It holds no goroutine of its own: callers drive
// it from their own read loop (the WebSocket connection's read goroutine)
// so a flush can be triggered either by new data or by the window timer.
type inputCoalescer struct {
	buf   strings.Builder
	timer *time.Timer
	armed bool
}

func newInputCoalescer() *inputCoalescer {
	return &inputCoalescer{}
}

// Add appends data to the pending buffer and reports whether it should be
// flushed immediately (burst size or a control character), along with the
// flush-timer channel to additionally select on when it should not.
func (c *inputCoalescer) Add(data string) (flush bool, timerC <-chan time.Time) {
	c.buf.WriteString(data)

	if c.buf.Len() >= coalesceBurstBytes || strings.ContainsAny(data, controlTriggers) {
		return true, nil
	}

	if !c.armed {
		c.timer = time.NewTimer(coalesceWindow)
		c.armed = true
	}
	return false, c.timer.C
}

// Flush returns the buffered input split into chunks no larger than
// maxWriteChunk and resets the coalescer.
func (c *inputCoalescer) Flush() []string {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.armed = false

	s := c.buf.String()
	c.buf.Reset()
	if s == "" {
		return nil
	}

	var chunks []string
	for len(s) > maxWriteChunk {
		chunks = append(chunks, s[:maxWriteChunk])
		s = s[maxWriteChunk:]
	}
	return append(chunks, s)
}
