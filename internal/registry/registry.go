// Package registry tracks every live connection and fans change batches out
// to all of them. The session map is owned by a single goroutine; all access
// goes through its mailbox, so no lock guards the map.
package registry

import (
	"errors"
	"log"
	"sync"
)

// ErrClosed is returned by Connect after the registry has been stopped.
var ErrClosed = errors.New("registry: closed")

// WatcherHandle is the control handle of the filesystem watcher. The
// registry holds it so the watcher cannot be torn down while sessions may
// still depend on it, and closes it on shutdown.
type WatcherHandle interface {
	Close() error
}

type connectMsg struct {
	outbound chan<- []string
	reply    chan uint64
}

type disconnectMsg struct {
	id uint64
}

type broadcastMsg struct {
	paths []string
}

type attachWatcherMsg struct {
	handle WatcherHandle
}

type countMsg struct {
	reply chan int
}

// Registry is the session hub. All methods are safe for concurrent use;
// they enqueue messages processed one at a time by the run loop.
type Registry struct {
	ops      chan any
	done     chan struct{}
	stopOnce sync.Once
}

func New() *Registry {
	r := &Registry{
		ops:  make(chan any, 64),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	sessions := make(map[uint64]chan<- []string)
	var nextID uint64
	var watcher WatcherHandle

	for {
		select {
		case msg := <-r.ops:
			switch m := msg.(type) {
			case connectMsg:
				nextID++
				sessions[nextID] = m.outbound
				m.reply <- nextID
			case disconnectMsg:
				delete(sessions, m.id)
			case broadcastMsg:
				for id, outbound := range sessions {
					select {
					case outbound <- m.paths:
					default:
						// Fire-and-forget: a stalled session drops the
						// batch rather than stalling everyone else.
						log.Printf("registry: session %d not keeping up, dropping batch", id)
					}
				}
			case attachWatcherMsg:
				watcher = m.handle
			case countMsg:
				m.reply <- len(sessions)
			}
		case <-r.done:
			if watcher != nil {
				if err := watcher.Close(); err != nil {
					log.Printf("registry: close watcher: %v", err)
				}
			}
			return
		}
	}
}

// Connect registers an outbound target and returns the new session id.
func (r *Registry) Connect(outbound chan<- []string) (uint64, error) {
	reply := make(chan uint64, 1)
	select {
	case r.ops <- connectMsg{outbound: outbound, reply: reply}:
	case <-r.done:
		return 0, ErrClosed
	}
	select {
	case id := <-reply:
		return id, nil
	case <-r.done:
		return 0, ErrClosed
	}
}

// Disconnect removes a session. Unknown ids are a no-op, so it is safe to
// call during teardown even if registration never completed.
func (r *Registry) Disconnect(id uint64) {
	select {
	case r.ops <- disconnectMsg{id: id}:
	case <-r.done:
	}
}

// Broadcast delivers a changed-path batch to every registered session.
// Delivery is best-effort and never blocks on a slow session.
func (r *Registry) Broadcast(paths []string) {
	select {
	case r.ops <- broadcastMsg{paths: paths}:
	case <-r.done:
	}
}

// AttachWatcherHandle ties the watcher's lifetime to the registry.
func (r *Registry) AttachWatcherHandle(handle WatcherHandle) {
	select {
	case r.ops <- attachWatcherMsg{handle: handle}:
	case <-r.done:
	}
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	reply := make(chan int, 1)
	select {
	case r.ops <- countMsg{reply: reply}:
	case <-r.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-r.done:
		return 0
	}
}

// Stop shuts the registry down. Pending operations may be discarded; the
// attached watcher handle is closed.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}
