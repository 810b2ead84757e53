package sse

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for a message")
		}
		return string(msg)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for a message")
		return ""
	}
}

func TestSubscribePublish(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ch := b.Subscribe()
	b.Publish(Event{Type: "test.event", Data: map[string]string{"key": "value"}})

	msg := receive(t, ch)
	if !strings.Contains(msg, "event: test.event") {
		t.Errorf("message missing event type: %q", msg)
	}
	if !strings.Contains(msg, `"key":"value"`) {
		t.Errorf("message missing payload: %q", msg)
	}
	if !strings.HasSuffix(msg, "\n\n") {
		t.Errorf("message missing terminator: %q", msg)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel never closed")
	}
}

func TestClientCount(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	if n := b.ClientCount(); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if n := b.ClientCount(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	b.Unsubscribe(ch1)
	b.Unsubscribe(ch2)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("count = %d, want 0 after unsubscribe", n)
	}
}

func TestVaultEventThrottle(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ch := b.Subscribe()
	b.PublishVaultEvent("updated", "a.md")
	msg := receive(t, ch)
	if !strings.Contains(msg, "vault.changed") || !strings.Contains(msg, "a.md") {
		t.Errorf("first event = %q", msg)
	}

	// Inside the throttle window the burst is swallowed.
	b.PublishVaultEvent("updated", "b.md")
	b.Publish(Event{Type: "marker", Data: "x"})
	msg = receive(t, ch)
	if !strings.Contains(msg, "marker") {
		t.Errorf("throttled event leaked: %q", msg)
	}
}

func TestSetThrottle(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ch := b.Subscribe()
	b.SetThrottle(time.Millisecond)
	b.PublishVaultEvent("created", "a.md")
	msg := receive(t, ch)
	time.Sleep(5 * time.Millisecond)
	b.PublishVaultEvent("created", "b.md")
	msg = receive(t, ch)
	if !strings.Contains(msg, "b.md") {
		t.Errorf("second event after shortened throttle = %q", msg)
	}
}

func TestCacheInvalidationEvent(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ch := b.Subscribe()
	b.PublishCacheInvalidation("tags", 7)
	msg := receive(t, ch)
	if !strings.Contains(msg, "cache.invalidated") || !strings.Contains(msg, `"count":7`) {
		t.Errorf("message = %q", msg)
	}
}

func TestTunerAdjustmentEvent(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ch := b.Subscribe()
	b.PublishTunerAdjustment("batch_size", 55)
	msg := receive(t, ch)
	if !strings.Contains(msg, "tuner.adjusted") || !strings.Contains(msg, `"parameter":"batch_size"`) {
		t.Errorf("message = %q", msg)
	}
}

func TestCloseIdempotent(t *testing.T) {
	b := NewBroker(0)
	ch := b.Subscribe()
	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("subscriber channel should be closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel never closed")
	}

	// Post-close operations are harmless no-ops.
	b.Publish(Event{Type: "late", Data: "x"})
	if n := b.ClientCount(); n != 0 {
		t.Errorf("count after close = %d", n)
	}
	post := b.Subscribe()
	if _, ok := <-post; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the handler's subscription before publishing.
	deadline := time.Now().Add(5 * time.Second)
	for b.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	b.Publish(Event{Type: "stream.test", Data: "payload"})

	// Give the write a moment, then close the connection.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "stream.test") {
		t.Errorf("body = %q", body)
	}
}
