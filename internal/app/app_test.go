package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytesnake/hex/internal/config"
	"github.com/bytesnake/hex/internal/output"
	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/transport/transporttest"
)

func testConfig(t *testing.T, srv *transporttest.Server) config.Config {
	t.Helper()
	u, err := url.Parse(srv.URL())
	if err != nil {
		t.Fatal(err)
	}
	host, port, _ := net.SplitHostPort(u.Host)
	cfg := config.Default()
	cfg.Server.Host = host
	cfg.Server.Port, _ = strconv.Atoi(port)
	cfg.Server.ReconnectDelayMs = 20
	cfg.Audio.Device = "null"
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.Log.Level = "error"
	return cfg
}

func library() *transporttest.Library {
	lib := transporttest.NewLibrary()
	lib.AddTrack(proto.Track{Key: "a", Title: "Alpha", Interpret: "Band", Duration: 180}, transporttest.Ramp(0, 2000))
	lib.AddTrack(proto.Track{Key: "b", Title: "Beta", Duration: 200}, transporttest.Ramp(0, 2000))
	lib.AddPlaylist(proto.Playlist{Key: "p", Title: "Mix"}, "a", "b")
	return lib
}

func openShell(t *testing.T) (*Shell, *App, *bytes.Buffer) {
	t.Helper()
	lib := library()
	srv := transporttest.New(lib.Handle)
	t.Cleanup(srv.Close)
	a, err := Open(Options{Cfg: testConfig(t, srv), Player: true, Device: output.NewNull(48000, 1024, false)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	var out bytes.Buffer
	return NewShell(a, &out), a, &out
}

func TestShellQueueCommands(t *testing.T) {
	sh, a, out := openShell(t)
	ctx := context.Background()

	for _, line := range []string{"search", "add #2 a", "playlist p", "goto 3", "remove 1"} {
		if err := sh.Exec(ctx, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	st := a.Engine.Status()
	var keys []string
	for _, tr := range st.Queue {
		keys = append(keys, tr.Key)
	}
	if strings.Join(keys, ",") != "a,a,b" || st.Pos != 1 {
		t.Fatalf("queue %v pos %d", keys, st.Pos)
	}

	out.Reset()
	sh.Exec(ctx, "queue")
	if !strings.Contains(out.String(), ">2") {
		t.Fatalf("queue output:\n%s", out.String())
	}

	if err := sh.Exec(ctx, "seek 1:30"); err != nil {
		t.Fatal(err)
	}
	if s := a.Engine.Status().Seconds; s != 90 {
		t.Fatalf("at %.1fs", s)
	}
	if err := sh.Exec(ctx, "seek 9:00"); err == nil {
		t.Fatal("seek past the end accepted")
	}

	out.Reset()
	sh.Exec(ctx, "status")
	if !strings.Contains(out.String(), "Band - Alpha") || !strings.Contains(out.String(), "1:30 / 3:00") {
		t.Fatalf("status output:\n%s", out.String())
	}

	if err := sh.Exec(ctx, "clear"); err != nil {
		t.Fatal(err)
	}
	if len(a.Engine.Status().Queue) != 0 {
		t.Fatal("queue not cleared")
	}
}

func TestShellErrors(t *testing.T) {
	sh, _, _ := openShell(t)
	ctx := context.Background()
	for _, line := range []string{"add", "add #1", "seek", "seek x", "goto y", "token", "frobnicate"} {
		if err := sh.Exec(ctx, line); !errors.Is(err, ErrUsage) {
			t.Errorf("%q: %v", line, err)
		}
	}
	if err := sh.Exec(ctx, "quit"); !errors.Is(err, io.EOF) {
		t.Fatalf("quit: %v", err)
	}
	if err := sh.Exec(ctx, "   "); err != nil {
		t.Fatal(err)
	}
}

func TestPlaysRecorded(t *testing.T) {
	sh, a, _ := openShell(t)
	events, cancel := a.Engine.Subscribe()
	defer cancel()
	go a.recordPlays(events)

	if err := sh.Exec(context.Background(), "add a b"); err != nil {
		t.Fatal(err)
	}
	sh.Exec(context.Background(), "next")

	deadline := time.Now().Add(3 * time.Second)
	for {
		plays, err := a.Cache.RecentPlays(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(plays) == 2 && plays[0].Key == "b" && plays[1].Key == "a" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("plays %+v", plays)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOneShotCommands(t *testing.T) {
	lib := library()
	srv := transporttest.New(lib.Handle)
	defer srv.Close()
	opt := Options{Cfg: testConfig(t, srv)}
	ctx := context.Background()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"search", []string{"alp"}, "Alpha"},
		{"track", []string{"a"}, "interpret: Band"},
		{"playlists", nil, "Mix"},
		{"playlist", []string{"p"}, "Beta"},
		{"token", []string{"new"}, "token 0"},
		{"token", []string{"0", "p"}, ""},
		{"token", []string{"0"}, "playlist Mix"},
		{"token", []string{"last"}, "token 0"},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		if err := RunCommand(ctx, opt, tc.name, tc.args, &out); err != nil {
			t.Fatalf("%s %v: %v", tc.name, tc.args, err)
		}
		if !strings.Contains(out.String(), tc.want) {
			t.Fatalf("%s %v:\n%s", tc.name, tc.args, out.String())
		}
	}

	if err := RunCommand(ctx, opt, "nope", nil, io.Discard); !errors.Is(err, ErrUsage) {
		t.Fatal(err)
	}
}

func TestParseSeconds(t *testing.T) {
	for in, want := range map[string]float64{"90": 90, "1:30": 90, "0:05.5": 5.5, "2.25": 2.25} {
		got, err := parseSeconds(in)
		if err != nil || got != want {
			t.Errorf("%s = %v %v", in, got, err)
		}
	}
	for _, in := range []string{"", "a", "1:60", "-1:00"} {
		if _, err := parseSeconds(in); err == nil {
			t.Errorf("%q accepted", in)
		}
	}
	if formatSeconds(61.9) != "1:01" {
		t.Fatal(formatSeconds(61.9))
	}
}
