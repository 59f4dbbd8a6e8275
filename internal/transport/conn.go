package transport

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bytesnake/hex/internal/proto"
)

// run owns the socket lifecycle until the client is closed.
func (c *Client) run() {
	defer close(c.done)
	for {
		conn, _, err := c.opts.Dialer.DialContext(c.ctx, c.opts.URL, nil)
		if err == nil && conn.Subprotocol() != "" && conn.Subprotocol() != c.opts.Subprotocol {
			log.Warnf("server chose subprotocol %q", conn.Subprotocol())
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.Warnf("connect %s: %v (retry in %s)", c.opts.URL, err, c.opts.ReconnectDelay)
		} else {
			c.serve(conn)
		}

		if !c.setState(Connecting) {
			return
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// setState updates the state unless the client is closed.
func (c *Client) setState(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return false
	}
	c.state = s
	return true
}

func (c *Client) serve(conn *websocket.Conn) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.state = Connected
	c.conn = conn
	close(c.connected)
	queued := len(c.outbox)
	c.mu.Unlock()

	log.Infof("connected to %s (%d queued)", c.opts.URL, queued)

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn, stop)
	}()

	err := c.readLoop(conn)

	close(stop)
	_ = conn.Close()
	<-writerDone

	c.mu.Lock()
	c.conn = nil
	c.connected = make(chan struct{})
	closed := c.state == Closed
	if !closed {
		c.state = Disconnected
	}
	c.mu.Unlock()

	if !closed {
		log.Warnf("disconnected from %s: %v", c.opts.URL, err)
	}
}

// writeLoop drains the outbox in FIFO order. A frame leaves the outbox only
// after it was written, so a broken socket keeps it for the next connection.
func (c *Client) writeLoop(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		c.mu.Lock()
		var next *outgoing
		if len(c.outbox) > 0 {
			next = c.outbox[0]
		}
		c.mu.Unlock()

		if next == nil {
			select {
			case <-c.wake:
				continue
			case <-stop:
				return
			}
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, next.frame); err != nil {
			log.Warnf("write %s %s: %v", next.p.Op, next.p.ID.Short(), err)
			_ = conn.Close()
			return
		}

		c.mu.Lock()
		if len(c.outbox) > 0 && c.outbox[0] == next {
			c.outbox[0] = nil
			c.outbox = c.outbox[1:]
		}
		c.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.BinaryMessage {
			log.Debugf("ignoring non-binary frame (%d bytes)", len(data))
			continue
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame. Protocol errors are logged and the frame
// dropped; they never close the socket.
func (c *Client) dispatch(data []byte) {
	a, err := proto.DecodeAnswer(data)
	if err != nil {
		if a == nil || !errors.Is(err, proto.ErrUnknownOp) {
			log.Warnf("dropping undecodable frame (%d bytes): %v", len(data), err)
			return
		}
		// The id is known even though the op is not; fail that caller.
		if p := c.take(a.ID); p != nil {
			p.resolve(answer{err: err})
			return
		}
		log.Warnf("dropping frame with %v for unknown id %s", err, a.ID.Short())
		return
	}

	p := c.take(a.ID)
	if p == nil {
		log.Warnf("dropping %s answer for unknown id %s", a.Op, a.ID.Short())
		return
	}
	if a.Op != p.Op {
		log.Debugf("answer op %s for %s request %s", a.Op, p.Op, a.ID.Short())
	}
	res, err := a.Value()
	p.resolve(answer{res: res, err: err})
}
