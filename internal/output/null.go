package output

import (
	"sync"
	"time"
)

// Null discards audio. A clocked Null calls the render callback in real
// time from its own goroutine; an unclocked one only renders on Tick, which
// makes playback deterministic in tests.
type Null struct {
	rate    int
	block   int
	clocked bool

	mu       sync.Mutex
	render   RenderFunc
	buf      [][2]float64
	rendered int
	stop     chan struct{}
	done     chan struct{}
}

func NewNull(rate, block int, clocked bool) *Null {
	if block < 1 {
		block = 1024
	}
	return &Null{rate: rate, block: block, clocked: clocked, buf: make([][2]float64, block)}
}

func (n *Null) SampleRate() int { return n.rate }

func (n *Null) Start(render RenderFunc) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.render = render
	if n.clocked && n.stop == nil {
		n.stop = make(chan struct{})
		n.done = make(chan struct{})
		go n.clock(n.stop, n.done)
	}
	return nil
}

func (n *Null) clock(stop, done chan struct{}) {
	defer close(done)
	period := time.Duration(n.block) * time.Second / time.Duration(n.rate)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			n.Tick(1)
		}
	}
}

// Tick renders blocks blocks. It does nothing while stopped.
func (n *Null) Tick(blocks int) {
	for i := 0; i < blocks; i++ {
		n.mu.Lock()
		render := n.render
		n.mu.Unlock()
		if render == nil {
			return
		}
		render(n.buf)
		n.mu.Lock()
		n.rendered += len(n.buf)
		n.mu.Unlock()
	}
}

// Rendered returns the number of frames rendered so far.
func (n *Null) Rendered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rendered
}

// Last returns a copy of the most recent block.
func (n *Null) Last() [][2]float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][2]float64(nil), n.buf...)
}

func (n *Null) Playing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.render != nil
}

func (n *Null) Stop() error {
	n.mu.Lock()
	n.render = nil
	stop, done := n.stop, n.done
	n.stop, n.done = nil, nil
	n.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (n *Null) Close() error { return n.Stop() }
