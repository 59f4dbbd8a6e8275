package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/bytesnake/hex/internal/proto"
)

type answer struct {
	res proto.Result
	err error
}

// Pending is the handle of one request awaiting its answer.
type Pending struct {
	ID proto.PacketID
	Op proto.Op

	c  *Client
	ch chan answer
}

func (p *Pending) resolve(a answer) {
	select {
	case p.ch <- a:
	default:
	}
}

// Wait blocks until the answer arrives, ctx ends, the request timeout passes
// or the client is closed. On timeout or cancellation the request is
// abandoned: it is removed from the pending table and, if not yet written,
// from the outbox. A late answer for it is then logged and dropped.
func (p *Pending) Wait(ctx context.Context) (proto.Result, error) {
	var timeout <-chan time.Time
	if d := p.c.opts.RequestTimeout; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case a := <-p.ch:
		return a.res, a.err
	case <-timeout:
		p.c.forget(p)
		return nil, fmt.Errorf("transport: %s %s: %w", p.Op, p.ID.Short(), context.DeadlineExceeded)
	case <-ctx.Done():
		p.c.forget(p)
		return nil, ctx.Err()
	case <-p.c.ctx.Done():
		// Close resolves every pending handle; prefer that answer if present.
		select {
		case a := <-p.ch:
			return a.res, a.err
		default:
			return nil, ErrClosed
		}
	}
}
