package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bytesnake/hex/internal/api"
	"github.com/bytesnake/hex/internal/proto"
)

var _ api.TrackCache = (*DB)(nil)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache", "hex.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrackUpsert(t *testing.T) {
	db := openTest(t)
	tr := proto.Track{Key: "k1", Title: "Song", Interpret: "Band", Duration: 123.5, FavsCount: 3, Channels: 2}
	if err := db.PutTrack(tr); err != nil {
		t.Fatal(err)
	}
	got, ok, err := db.Track("k1")
	if err != nil || !ok {
		t.Fatalf("Track: %v %v", ok, err)
	}
	if got != tr {
		t.Fatalf("got %+v want %+v", got, tr)
	}

	tr.Title = "Song (remaster)"
	if err := db.PutTrack(tr); err != nil {
		t.Fatal(err)
	}
	got, _, _ = db.Track("k1")
	if got.Title != tr.Title {
		t.Fatalf("upsert kept %q", got.Title)
	}
	if n, _ := db.CountTracks(); n != 1 {
		t.Fatalf("%d rows", n)
	}

	if err := db.DeleteTrack("k1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := db.Track("k1"); ok || err != nil {
		t.Fatalf("after delete: %v %v", ok, err)
	}
	if err := db.DeleteTrack("k1"); err != nil {
		t.Fatal("deleting twice:", err)
	}
}

func TestSearchTracks(t *testing.T) {
	db := openTest(t)
	db.PutTrack(proto.Track{Key: "1", Title: "Blue Monday", Interpret: "New Order"})
	db.PutTrack(proto.Track{Key: "2", Title: "Atmosphere", Interpret: "Joy Division"})
	db.PutTrack(proto.Track{Key: "3", Title: "Regret", Album: "Republic", Interpret: "New Order"})

	got, err := db.SearchTracks("new order", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tracks", len(got))
	}
	all, _ := db.SearchTracks("", 0)
	if len(all) != 3 {
		t.Fatalf("empty query: %d", len(all))
	}
	one, _ := db.SearchTracks("", 1)
	if len(one) != 1 {
		t.Fatalf("limit: %d", len(one))
	}
}

func TestMeta(t *testing.T) {
	db := openTest(t)
	if _, ok, err := db.GetMeta("last_token"); ok || err != nil {
		t.Fatalf("unset: %v %v", ok, err)
	}
	db.SetMeta("last_token", "4")
	db.SetMeta("last_token", "5")
	v, ok, err := db.GetMeta("last_token")
	if err != nil || !ok || v != "5" {
		t.Fatalf("got %q %v %v", v, ok, err)
	}
}

func TestPlays(t *testing.T) {
	db := openTest(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := db.LogPlay(k); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.PrunePlays(3); err != nil {
		t.Fatal(err)
	}
	plays, err := db.RecentPlays(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(plays) != 3 || plays[0].Key != "d" || plays[2].Key != "b" {
		t.Fatalf("plays %+v", plays)
	}
	if time.Since(plays[0].PlayedAt) > time.Hour {
		t.Fatalf("played_at %v", plays[0].PlayedAt)
	}
}

func TestMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.PutTrack(proto.Track{Key: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.Track("x"); !ok {
		t.Fatal("in-memory track lost")
	}
}
