package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cjeanneret/VoxArm/internal/control"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "hello")

	evt := receive(t, ch)
	if evt.Msg != "hello" || evt.Level != "info" || evt.Kind != KindLog {
		t.Errorf("event = %+v, want info log \"hello\"", evt)
	}
	if evt.Time == "" {
		t.Error("event should have a timestamp")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if n := b.Subscribers(); n != 2 {
		t.Fatalf("Subscribers() = %d, want 2", n)
	}
	b.Broadcast("info", "multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "multi" {
			t.Errorf("subscriber %d: msg = %q, want \"multi\"", i, evt.Msg)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannelOnce(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
	// Publishing with no subscribers must not panic.
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Broadcast("info", "fill")
	}

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != subscriberBuffer {
		t.Errorf("buffered %d messages, want %d", count, subscriberBuffer)
	}
}

func TestBroadcaster_PublishTransition(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.PublishTransition(control.Transition{
		From: control.Dispatching, To: control.Executing,
		UtteranceID: "abc", At: time.Now(),
	})

	evt := receive(t, ch)
	if evt.Kind != KindState || evt.State != "executing" || evt.UtteranceID != "abc" {
		t.Errorf("event = %+v", evt)
	}
	if evt.Msg != "dispatching -> executing" {
		t.Errorf("msg = %q", evt.Msg)
	}
}

func TestBroadcaster_PublishAnnouncement(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.PublishAnnouncement(control.Announcement{Text: "Rotation complete", At: time.Now()})

	evt := receive(t, ch)
	if evt.Kind != KindAnnounce || evt.Msg != "Rotation complete" {
		t.Errorf("event = %+v", evt)
	}
}

func TestBroadcastWriter_SplitsLines(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	in := "  [VoxArm] first  \n\n[VoxArm] second\n"
	n, err := w.Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write = %d, %v; want %d, nil", n, err, len(in))
	}

	if evt := receive(t, ch); evt.Msg != "[VoxArm] first" {
		t.Errorf("first msg = %q", evt.Msg)
	}
	if evt := receive(t, ch); evt.Msg != "[VoxArm] second" {
		t.Errorf("second msg = %q", evt.Msg)
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	BroadcastWriter(b).Write([]byte("   \n"))

	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}
