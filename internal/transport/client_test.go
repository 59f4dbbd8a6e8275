package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/transport/transporttest"
)

func echoTrack(req proto.Request) []byte {
	if g, ok := req.Action.(proto.GetTrack); ok {
		return proto.EncodeAnswer(req.ID, proto.OpGetTrack, proto.Track{Key: g.Key, Title: "t-" + g.Key})
	}
	return proto.EncodeAnswer(req.ID, req.Action.Op(), proto.Empty{})
}

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	c := New(Options{URL: url, ReconnectDelay: 20 * time.Millisecond, RequestTimeout: 2 * time.Second})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestURL(t *testing.T) {
	if got := URL("example.org", 0, ""); got != "ws://example.org:2794/" {
		t.Fatalf("got %s", got)
	}
	if got := URL("::1", 9000, "api"); got != "ws://[::1]:9000/api" {
		t.Fatalf("got %s", got)
	}
}

func TestCallRoundTrip(t *testing.T) {
	srv := transporttest.New(echoTrack)
	defer srv.Close()

	c := newClient(t, srv.URL())
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	res, err := c.Call(context.Background(), proto.PacketID{}, proto.GetTrack{Key: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if tr := res.(proto.Track); tr.Title != "t-abc" {
		t.Fatalf("got %+v", tr)
	}
	if c.Outstanding() != 0 {
		t.Fatalf("Outstanding = %d", c.Outstanding())
	}
}

func TestQueuedBeforeConnectSentOnceInOrder(t *testing.T) {
	srv := transporttest.New(echoTrack)
	defer srv.Close()

	c := newClient(t, srv.URL())
	keys := []string{"a", "b", "c", "d", "e"}
	var handles []*Pending
	for _, k := range keys {
		p, err := c.Send(proto.PacketID{}, proto.GetTrack{Key: k})
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, p)
	}
	if c.Queued() != len(keys) {
		t.Fatalf("Queued = %d", c.Queued())
	}

	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(); err != nil {
		t.Fatal("second Connect:", err)
	}
	for i, p := range handles {
		res, err := p.Wait(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.(proto.Track).Key != keys[i] {
			t.Fatalf("handle %d resolved with %+v", i, res)
		}
	}

	got := srv.Received()
	if len(got) != len(keys) {
		t.Fatalf("server received %d requests, want %d", len(got), len(keys))
	}
	for i, r := range got {
		if r.Action.(proto.GetTrack).Key != keys[i] {
			t.Fatalf("request %d = %+v", i, r.Action)
		}
	}
	if srv.Accepted() != 1 {
		t.Fatalf("idempotent Connect opened %d sockets", srv.Accepted())
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := transporttest.New(echoTrack)
	defer srv.Close()

	c := newClient(t, srv.URL())
	c.Connect()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.WaitConnected(ctx); err != nil {
		t.Fatal(err)
	}

	srv.DropConnections()
	waitFor(t, "reconnect", func() bool { return srv.Accepted() >= 2 && c.State() == Connected })

	res, err := c.Call(ctx, proto.PacketID{}, proto.GetTrack{Key: "z"})
	if err != nil {
		t.Fatal(err)
	}
	if res.(proto.Track).Key != "z" {
		t.Fatalf("got %+v", res)
	}
}

func TestUnknownIDResolvesNothing(t *testing.T) {
	srv := transporttest.New(nil) // never answers
	defer srv.Close()

	c := newClient(t, srv.URL())
	c.Connect()
	p, err := c.Send(proto.PacketID{}, proto.GetTrack{Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "request", func() bool { return len(srv.Received()) == 1 })

	srv.Broadcast(proto.EncodeAnswer(proto.NewPacketID(), proto.OpGetTrack, proto.Track{Key: "k"}))
	srv.Broadcast([]byte{0x0a, 0x10, 0x01}) // truncated

	select {
	case a := <-p.ch:
		t.Fatalf("pending resolved by foreign frame: %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
	if c.Outstanding() != 1 || c.State() != Connected {
		t.Fatalf("Outstanding=%d State=%s", c.Outstanding(), c.State())
	}

	// The real answer still resolves it.
	srv.Broadcast(proto.EncodeAnswer(p.ID, proto.OpGetTrack, proto.Track{Key: "k"}))
	if _, err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAppErrorRejectsCaller(t *testing.T) {
	srv := transporttest.New(func(req proto.Request) []byte {
		return proto.EncodeError(req.ID, req.Action.Op(), "no such track")
	})
	defer srv.Close()

	c := newClient(t, srv.URL())
	c.Connect()
	_, err := c.Call(context.Background(), proto.PacketID{}, proto.GetTrack{Key: "x"})
	var ae *proto.AppError
	if !errors.As(err, &ae) || ae.Msg != "no such track" {
		t.Fatalf("err = %v", err)
	}
}

func TestUnencodableProducesNoTraffic(t *testing.T) {
	srv := transporttest.New(echoTrack)
	defer srv.Close()

	c := newClient(t, srv.URL())
	if _, err := c.Send(proto.PacketID{}, proto.GetTrack{}); !errors.Is(err, proto.ErrUnencodable) {
		t.Fatalf("err = %v", err)
	}
	if c.Queued() != 0 || c.Outstanding() != 0 {
		t.Fatal("unencodable request was queued")
	}
}

func TestTimeoutAbandonsRequest(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/", RequestTimeout: 30 * time.Millisecond})
	defer c.Close()

	_, err := c.Call(context.Background(), proto.PacketID{}, proto.GetTrack{Key: "k"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if c.Queued() != 0 || c.Outstanding() != 0 {
		t.Fatalf("abandoned request kept: queued=%d outstanding=%d", c.Queued(), c.Outstanding())
	}
}

func TestCloseFailsPending(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/", RequestTimeout: -1})
	p, err := c.Send(proto.PacketID{}, proto.LastToken{})
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Send(proto.PacketID{}, proto.LastToken{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestSharedIDResolvesInOrder(t *testing.T) {
	srv := transporttest.New(func(req proto.Request) []byte {
		if req.Action.Op() == proto.OpStreamNext {
			return proto.EncodeAnswer(req.ID, proto.OpStreamNext, proto.StreamPacket{Data: []byte{byte(len(req.ID.String()))}})
		}
		return nil
	})
	defer srv.Close()

	c := newClient(t, srv.URL())
	c.Connect()
	id := proto.NewPacketID()
	key := "k"
	first, _ := c.Send(id, proto.StreamNext{Key: &key})
	second, _ := c.Send(id, proto.StreamNext{})
	for _, p := range []*Pending{first, second} {
		if _, err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	got := srv.Received()
	if len(got) != 2 || got[0].ID != id || got[1].ID != id {
		t.Fatalf("received %+v", got)
	}
	if got[0].Action.(proto.StreamNext).Key == nil || got[1].Action.(proto.StreamNext).Key != nil {
		t.Fatal("key must be sent only on the first pull")
	}
}
