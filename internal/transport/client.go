// Package transport multiplexes hex requests over one persistent websocket.
//
// Every request carries a correlation id. Answers are routed back to the
// caller that registered that id. While the socket is down, requests wait in
// an ordered outbox and are written exactly once after the next connect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/util"
)

var log = logging.Logger("transport")

// ErrClosed is returned for requests on, or pending in, a closed client.
var ErrClosed = errors.New("transport: client closed")

// State of the underlying socket.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	URL            string
	Subprotocol    string
	ReconnectDelay time.Duration // fixed, not exponential
	RequestTimeout time.Duration // per request; negative disables
	Dialer         *websocket.Dialer
}

// URL builds the websocket address of a hex server.
func URL(host string, port int, path string) string {
	if port == 0 {
		port = proto.DefaultPort
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

type outgoing struct {
	p     *Pending
	frame []byte
}

// Client is the transport multiplexer. Construct it with New, start it with
// Connect and pass it explicitly to everything that talks to the server.
type Client struct {
	opts Options

	mu        sync.Mutex
	state     State
	running   bool
	conn      *websocket.Conn
	outbox    []*outgoing
	pending   map[proto.PacketID][]*Pending
	connected chan struct{} // closed while a socket is open

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client. No connection is made until Connect.
func New(opts Options) *Client {
	if opts.Subprotocol == "" {
		opts.Subprotocol = proto.Subprotocol
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = util.DefaultReconnectDelay
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = util.DefaultRequestTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: util.ShortTimeout * 5}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:      opts,
		pending:   make(map[proto.PacketID][]*Pending),
		connected: make(chan struct{}),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Connect starts the connection loop. It returns at once; the socket is
// (re)established in the background with a fixed delay between attempts.
// Calling Connect on a running client is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed || c.ctx.Err() != nil {
		return ErrClosed
	}
	if c.running {
		return nil
	}
	c.state = Connecting
	c.running = true
	go c.run()
	return nil
}

// WaitConnected blocks until a socket is open.
func (c *Client) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		ch, st := c.connected, c.state
		c.mu.Unlock()
		if st == Closed {
			return ErrClosed
		}
		select {
		case <-ch:
			c.mu.Lock()
			st = c.state
			c.mu.Unlock()
			if st == Connected {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return ErrClosed
		}
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send encodes a and queues it for transmission under id. A zero id is
// replaced with a fresh one. The returned handle resolves when an answer with
// the same id arrives. Unencodable actions fail here and produce no traffic.
func (c *Client) Send(id proto.PacketID, a proto.Action) (*Pending, error) {
	if id.IsZero() {
		id = proto.NewPacketID()
	}
	frame, err := proto.EncodeRequest(id, a)
	if err != nil {
		return nil, err
	}
	p := &Pending{ID: id, Op: a.Op(), c: c, ch: make(chan answer, 1)}

	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	// Register before queueing so a fast answer is never missed.
	c.pending[id] = append(c.pending[id], p)
	c.outbox = append(c.outbox, &outgoing{p: p, frame: frame})
	c.mu.Unlock()

	c.kick()
	log.Debugf("queued %s %s (%d bytes)", p.Op, id.Short(), len(frame))
	return p, nil
}

// Call is Send followed by Wait.
func (c *Client) Call(ctx context.Context, id proto.PacketID, a proto.Action) (proto.Result, error) {
	p, err := c.Send(id, a)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Close stops the connection loop, closes the socket and fails every
// pending request with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	running := c.running
	c.state = Closed
	conn := c.conn
	pending := c.pending
	c.pending = make(map[proto.PacketID][]*Pending)
	c.outbox = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if running {
		<-c.done
	}
	for _, list := range pending {
		for _, p := range list {
			p.resolve(answer{err: ErrClosed})
		}
	}
	return nil
}

func (c *Client) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// forget drops p from the pending table and, if still unsent, the outbox.
func (c *Client) forget(p *Pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.pending[p.ID]
	for i, q := range list {
		if q == p {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.pending, p.ID)
	} else {
		c.pending[p.ID] = list
	}
	for i, o := range c.outbox {
		if o.p == p {
			c.outbox = append(c.outbox[:i:i], c.outbox[i+1:]...)
			break
		}
	}
}

// take removes and returns the oldest pending request for id.
func (c *Client) take(id proto.PacketID) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.pending[id]
	if len(list) == 0 {
		return nil
	}
	p := list[0]
	if len(list) == 1 {
		delete(c.pending, id)
	} else {
		c.pending[id] = list[1:]
	}
	return p
}

// Outstanding returns the number of requests waiting for an answer.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, list := range c.pending {
		n += len(list)
	}
	return n
}

// Queued returns the number of frames waiting for a socket.
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

func (c *Client) String() string {
	return fmt.Sprintf("transport(%s, %s)", c.opts.URL, c.State())
}
