package ws

import (
	"log"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sptf/backend/internal/files"
	"github.com/sptf/backend/internal/registry"
	"github.com/sptf/backend/internal/sptferr"
	"github.com/sptf/backend/internal/wire"
)

const (
	// How often heartbeat pings are sent.
	heartbeatInterval = 5 * time.Second

	// How long without a ping or pong from the client before the
	// connection is force-closed.
	clientTimeout = 10 * time.Second

	writeWait = 10 * time.Second
)

type readEvent struct {
	frame []byte
	beat  bool
}

// Conn is one client's live connection. Its run loop owns all connection
// state (session id, watched path, heartbeat clock); the read and write
// pumps only shuttle bytes.
type Conn struct {
	ws       *websocket.Conn
	registry *registry.Registry
	root     string

	send    chan []byte
	inbound chan readEvent
	notify  chan []string
	done    chan struct{}

	// Real path of the directory the client currently watches, set by the
	// last list-directory request. Empty means no watch.
	watched string
}

func newConn(wsConn *websocket.Conn, reg *registry.Registry, root string) *Conn {
	return &Conn{
		ws:       wsConn,
		registry: reg,
		root:     root,
		send:     make(chan []byte, 64),
		inbound:  make(chan readEvent, 16),
		notify:   make(chan []string, 16),
		done:     make(chan struct{}),
	}
}

// run drives the connection from registration to teardown. Frames and
// fan-out notifications are handled one at a time, in arrival order.
func (c *Conn) run() {
	defer c.ws.Close()
	defer close(c.done)

	go c.writePump()
	defer close(c.send)

	go c.readPump()

	id, err := c.registry.Connect(c.notify)
	if err != nil {
		log.Printf("ws: register session: %v", err)
		return
	}
	defer c.registry.Disconnect(id)

	lastBeat := time.Now()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.inbound:
			if !ok {
				return
			}
			if ev.beat {
				lastBeat = time.Now()
			}
			if ev.frame != nil {
				c.handleFrame(ev.frame)
			}
		case paths := <-c.notify:
			c.handleChanged(paths)
		case <-ticker.C:
			if time.Since(lastBeat) > clientTimeout {
				log.Printf("ws: client heartbeat failed, disconnecting")
				return
			}
			c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
	}
}

func (c *Conn) readPump() {
	defer close(c.inbound)

	c.ws.SetPingHandler(func(appData string) error {
		c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		c.postBeat()
		return nil
	})
	c.ws.SetPongHandler(func(string) error {
		c.postBeat()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.inbound <- readEvent{frame: data}:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) postBeat() {
	select {
	case c.inbound <- readEvent{beat: true}:
	default:
		// Run loop is busy; an in-flight frame already proves liveness.
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}

// handleFrame decodes one inbound envelope and dispatches it. A frame that
// fails to decode is answered with a GeneralError; the connection stays
// open.
func (c *Conn) handleFrame(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		log.Printf("ws: decode frame: %v", err)
		c.sendError(err)
		return
	}

	switch req := msg.(type) {
	case *wire.ListDirectoryRequest:
		c.watched = files.RealPath(c.root, req.Path)
		resp, err := files.ListDir(c.root, req.Path)
		if err != nil {
			c.sendError(err)
			return
		}
		c.sendMessage(resp)
	default:
		// Outbound-only kinds are not valid requests.
		c.sendError(sptferr.Newf(sptferr.WrongFormat, "unexpected content kind %T", msg))
	}
}

// handleChanged reacts to a changed-path batch from the registry. When any
// changed path sits directly inside the watched directory, one fresh listing
// is pushed, no matter how many paths matched.
func (c *Conn) handleChanged(paths []string) {
	if c.watched == "" {
		return
	}

	matched := false
	for _, p := range paths {
		if filepath.Dir(p) == c.watched {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	userPath, ok := files.UserPath(c.root, c.watched)
	if !ok {
		log.Printf("ws: watched path %s escaped the root, ignoring", c.watched)
		return
	}
	resp, err := files.ListDir(c.root, userPath)
	if err != nil {
		c.sendError(err)
		return
	}
	c.sendMessage(resp)
}

func (c *Conn) sendMessage(msg any) {
	data, err := wire.Encode(msg)
	if err != nil {
		log.Printf("ws: encode %T: %v", msg, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("ws: client not keeping up, dropping frame")
	}
}

func (c *Conn) sendError(err error) {
	c.sendMessage(&wire.GeneralError{Code: uint64(sptferr.CodeOf(err))})
}
