package containeradapter

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// SessionStart opens (or reuses, reuse=true) a named pty session running
// cmd inside the container (spec §4.1 SessionStart).
func (a *Adapter) SessionStart(ctx context.Context, container, session, cmdName string, args []string, reuse bool, timeout time.Duration) error {
	full := []string{"session", "start", container, session, cmdName}
	full = append(full, args...)
	if !reuse {
		full = append(full, "--no-reuse")
	}
	_, _, err := a.run(ctx, "session_start", timeout, full...)
	return err
}

// SessionSend appends raw text to a session's stdin with no key parsing
// (spec §4.1 SessionSend).
func (a *Adapter) SessionSend(ctx context.Context, container, session, text string, timeout time.Duration) error {
	_, _, err := a.run(ctx, "session_send", timeout, "session", "send", container, session, text)
	return err
}

// SessionType sends either literal text or symbolic keys (Enter, Esc, ...)
// to a session (spec §4.1 SessionType).
func (a *Adapter) SessionType(ctx context.Context, container, session string, text string, keys []string, timeout time.Duration) error {
	args := []string{"session", "type", container, session}
	if text != "" {
		args = append(args, "--text", text)
	}
	for _, k := range keys {
		args = append(args, "--key", k)
	}
	_, _, err := a.run(ctx, "session_type", timeout, args...)
	return err
}

// SessionReadResult is the output of a SessionRead call.
type SessionReadResult struct {
	OffsetBytes int64
	Text        string
}

// SessionReadOptions configures SessionRead (spec §4.1 SessionRead).
type SessionReadOptions struct {
	Since     int64 // byte offset to resume from, -1 means "not set"
	MaxBytes  int
	TailLines int
}

// SessionRead reads new output from a session since the given byte offset,
// or the last TailLines lines if Since is unset.
func (a *Adapter) SessionRead(ctx context.Context, container, session string, opts SessionReadOptions, timeout time.Duration) (*SessionReadResult, error) {
	args := []string{"session", "read", container, session}
	if opts.Since >= 0 {
		args = append(args, "--since", strconv.FormatInt(opts.Since, 10))
	}
	if opts.MaxBytes > 0 {
		args = append(args, "--max-bytes", strconv.Itoa(opts.MaxBytes))
	}
	if opts.TailLines > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.TailLines))
	}
	stdout, _, err := a.run(ctx, "session_read", timeout, args...)
	if err != nil {
		return nil, err
	}
	return parseSessionRead(stdout)
}

// parseSessionRead expects the dvm session read contract: a single header
// line "OffsetBytes: <n>" followed by a blank line, then the raw output
// bytes. Unexpected formats yield offset 0 and the raw bytes as text,
// mirroring the adapter's "never throw on noise" parsing policy.
func parseSessionRead(raw []byte) (*SessionReadResult, error) {
	const prefix = "OffsetBytes: "
	s := string(raw)
	nl := indexByte(s, '\n')
	if nl < 0 || len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return &SessionReadResult{OffsetBytes: 0, Text: s}, nil
	}
	header := s[:nl]
	rest := s
	if nl+1 <= len(s) {
		rest = s[nl+1:]
	}
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	}
	n, err := strconv.ParseInt(header[len(prefix):], 10, 64)
	if err != nil {
		return &SessionReadResult{OffsetBytes: 0, Text: s}, nil
	}
	return &SessionReadResult{OffsetBytes: n, Text: rest}, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (a *Adapter) String() string {
	return fmt.Sprintf("containeradapter(%s)", a.binPath)
}
