package terminalhub

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dronehub/internal/config"
	"dronehub/internal/containeradapter"
	"dronehub/internal/logging"
)

func fakeDvm(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dvm")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake dvm: %v", err)
	}
	return path
}

func newTestHub(t *testing.T, dvmScript string) *Hub {
	t.Helper()
	bin := fakeDvm(t, dvmScript)
	adapter := containeradapter.New(bin, logging.New(false))
	cfg := config.NewTestConfig()
	return New(adapter, cfg, logging.New(false))
}

func TestOpenStartsSessionOnce(t *testing.T) {
	h := newTestHub(t, `exit 0`)

	name, err := h.Open(context.Background(), "drone-1", OpenOptions{Mode: ModeAgent, Chat: "default"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if name != "agent-default" {
		t.Fatalf("name = %q, want agent-default", name)
	}

	name2, err := h.Open(context.Background(), "drone-1", OpenOptions{Mode: ModeAgent, Chat: "default"})
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if name2 != name {
		t.Fatalf("expected reuse, got %q vs %q", name2, name)
	}
}

func TestSessionForCreatesLazily(t *testing.T) {
	h := newTestHub(t, `exit 0`)
	s1 := h.sessionFor("drone-1", "agent-default")
	s2 := h.sessionFor("drone-1", "agent-default")
	if s1 != s2 {
		t.Fatal("expected the same session instance on repeated lookups")
	}
}

func TestSubscribeFansOutToMultipleSubscribers(t *testing.T) {
	h := newTestHub(t, `exit 0`)
	s := h.sessionFor("drone-1", "agent-default")

	ch1, cancel1, _ := s.subscribe(h)
	defer cancel1()
	ch2, cancel2, _ := s.subscribe(h)
	defer cancel2()

	s.publish(outputMsg(10, "hello"))

	for _, ch := range []<-chan ServerMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			if msg.Text != "hello" || msg.OffsetBytes != 10 {
				t.Fatalf("got %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive published message")
		}
	}
}

func TestUnsubscribeStopsLoopWhenLastSubscriberLeaves(t *testing.T) {
	h := newTestHub(t, `exit 0`)
	s := h.sessionFor("drone-1", "agent-default")

	_, cancel, _ := s.subscribe(h)
	s.mu.Lock()
	running := s.cancel != nil
	s.mu.Unlock()
	if !running {
		t.Fatal("expected poll loop to be started for first subscriber")
	}

	cancel()
	s.mu.Lock()
	stopped := s.cancel == nil
	s.mu.Unlock()
	if !stopped {
		t.Fatal("expected poll loop to be stopped after last subscriber leaves")
	}
}

func TestReadOnceReturnsOffsetAndText(t *testing.T) {
	h := newTestHub(t, `printf 'OffsetBytes: 42\n\nhi'`)
	out, err := h.ReadOnce(context.Background(), "drone-1", "agent-default", containeradapter.SessionReadOptions{Since: -1})
	if err != nil {
		t.Fatalf("ReadOnce: %v", err)
	}
	if out.OffsetBytes != 42 || out.Text != "hi" {
		t.Fatalf("out = %+v, want offsetBytes=42 text=hi", out)
	}
}

func TestServeOutputWritesJSONBody(t *testing.T) {
	h := newTestHub(t, `printf 'OffsetBytes: 5\n\nok'`)
	req := httptest.NewRequest("GET", "/output?since=0", nil)
	rr := httptest.NewRecorder()
	h.ServeOutput(rr, req, "drone-1", "agent-default")

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"offsetBytes":5`) || !strings.Contains(body, `"ok"`) {
		t.Fatalf("body = %q", body)
	}
}

func TestServeInputAcceptsAndReturns202(t *testing.T) {
	h := newTestHub(t, `exit 0`)
	req := httptest.NewRequest("POST", "/input", strings.NewReader(`{"data":"ls\n"}`))
	rr := httptest.NewRecorder()
	h.ServeInput(rr, req, "drone-1", "agent-default")

	if rr.Code != 202 {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
}

func TestServeInputRejectsMalformedBody(t *testing.T) {
	h := newTestHub(t, `exit 0`)
	req := httptest.NewRequest("POST", "/input", strings.NewReader(`not json`))
	rr := httptest.NewRecorder()
	h.ServeInput(rr, req, "drone-1", "agent-default")

	if rr.Code != 400 {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRetryInputStopsWhenSessionClosed(t *testing.T) {
	h := newTestHub(t, `exit 1`)
	h.sessionFor("drone-1", "agent-default")

	done := make(chan struct{})
	go func() {
		h.RetryInput(context.Background(), "drone-1", "agent-default", "x")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	h.Close("drone-1", "agent-default")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RetryInput did not return after session close")
	}
}
