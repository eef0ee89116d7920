package registry

import (
	"testing"
	"time"
)

func waitForCount(t *testing.T, r *Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.SessionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("SessionCount() = %d, want %d", r.SessionCount(), want)
}

func TestConnectDisconnect(t *testing.T) {
	r := New()
	defer r.Stop()

	ch1 := make(chan []string, 1)
	ch2 := make(chan []string, 1)

	id1, err := r.Connect(ch1)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	id2, err := r.Connect(ch2)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("Connect() issued duplicate id %d", id1)
	}
	waitForCount(t, r, 2)

	r.Disconnect(id1)
	waitForCount(t, r, 1)

	// Disconnecting an unknown or already-removed id is a no-op.
	r.Disconnect(id1)
	r.Disconnect(99999)
	waitForCount(t, r, 1)

	r.Disconnect(id2)
	waitForCount(t, r, 0)
}

func TestBroadcastReachesAllSessions(t *testing.T) {
	r := New()
	defer r.Stop()

	channels := make([]chan []string, 3)
	for i := range channels {
		channels[i] = make(chan []string, 4)
		if _, err := r.Connect(channels[i]); err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
	}

	batch := []string{"/a", "/b", "/a"}
	r.Broadcast(batch)

	for i, ch := range channels {
		select {
		case got := <-ch:
			if len(got) != 3 || got[0] != "/a" || got[1] != "/b" || got[2] != "/a" {
				t.Errorf("session %d received %v, want %v", i, got, batch)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("session %d never received the batch", i)
		}
	}
}

func TestBroadcastSkipsStalledSession(t *testing.T) {
	r := New()
	defer r.Stop()

	// Unbuffered with no reader: always full.
	stalled := make(chan []string)
	healthy := make(chan []string, 1)

	if _, err := r.Connect(stalled); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if _, err := r.Connect(healthy); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	r.Broadcast([]string{"/x"})

	select {
	case got := <-healthy:
		if len(got) != 1 || got[0] != "/x" {
			t.Errorf("healthy session received %v, want [/x]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled session blocked delivery to the healthy one")
	}
}

func TestConnectAfterStop(t *testing.T) {
	r := New()
	r.Stop()

	if _, err := r.Connect(make(chan []string, 1)); err != ErrClosed {
		t.Errorf("Connect() after Stop = %v, want ErrClosed", err)
	}

	// These must not panic or block after shutdown.
	r.Disconnect(1)
	r.Broadcast([]string{"/x"})
	r.Stop()
}

type closeRecorder struct {
	closed chan struct{}
}

func (c *closeRecorder) Close() error {
	close(c.closed)
	return nil
}

func TestStopClosesWatcherHandle(t *testing.T) {
	r := New()
	handle := &closeRecorder{closed: make(chan struct{})}
	r.AttachWatcherHandle(handle)

	// Make sure the attach was processed before stopping.
	waitForCount(t, r, 0)
	r.Stop()

	select {
	case <-handle.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher handle was not closed on Stop")
	}
}
