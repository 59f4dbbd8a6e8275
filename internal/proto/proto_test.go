package proto

import (
	"errors"
	"testing"
)

func strp(s string) *string { return &s }

func TestPacketIDBytes(t *testing.T) {
	id := PacketID{1, 2, 0xdeadbeef, 4}
	got, ok := packetIDFrom(id.bytes())
	if !ok || got != id {
		t.Fatalf("got %v, %v", got, ok)
	}
	if id.String() != "0000000100000002deadbeef00000004" {
		t.Fatalf("String = %s", id)
	}
	if _, ok := packetIDFrom([]byte{1, 2, 3}); ok {
		t.Fatal("short id accepted")
	}
}

func TestNewPacketIDUnique(t *testing.T) {
	seen := make(map[PacketID]bool)
	for i := 0; i < 1000; i++ {
		id := NewPacketID()
		if id.IsZero() {
			t.Fatal("zero id")
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestOpNames(t *testing.T) {
	for op := OpSearch; op < opCount; op++ {
		if !op.Valid() {
			t.Fatalf("%d not valid", op)
		}
		if op.String() == "" {
			t.Fatalf("%d has no name", op)
		}
		if _, ok := resultDecoders[op]; !ok {
			t.Errorf("%s has no result decoder", op)
		}
		if _, ok := actionDecoders[op]; !ok {
			t.Errorf("%s has no action decoder", op)
		}
	}
	if OpInvalid.Valid() || opCount.Valid() {
		t.Fatal("out of range op reported valid")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	id := NewPacketID()
	pos := 12.5
	cases := []Action{
		Search{Query: "bach"},
		StreamNext{Key: strp("abc")},
		StreamNext{},
		StreamSeek{Sample: 48000 * 3},
		UpdateTrack{Key: "k", Title: strp("t"), Composer: strp("")},
		UpdateToken{Token: 7, Played: strp("a,b"), Pos: &pos},
		Download{Format: "zip", Tracks: []string{"a", "b"}},
		UploadTrack{Name: "x", Format: "mp3", Data: []byte{0xff, 0xfe, 0x00}},
	}
	for _, a := range cases {
		t.Run(a.Op().String(), func(t *testing.T) {
			b, err := EncodeRequest(id, a)
			if err != nil {
				t.Fatal(err)
			}
			req, err := DecodeRequest(b)
			if err != nil {
				t.Fatal(err)
			}
			if req.ID != id || req.Action.Op() != a.Op() {
				t.Fatalf("got %s %s", req.ID, req.Action.Op())
			}
		})
	}
}

func TestStreamNextKeyPresence(t *testing.T) {
	b, _ := EncodeRequest(NewPacketID(), StreamNext{})
	req, _ := DecodeRequest(b)
	if req.Action.(StreamNext).Key != nil {
		t.Fatal("continuation pull carried a key")
	}

	b, _ = EncodeRequest(NewPacketID(), StreamNext{Key: strp("k1")})
	req, _ = DecodeRequest(b)
	if k := req.Action.(StreamNext).Key; k == nil || *k != "k1" {
		t.Fatalf("key = %v", k)
	}
}

func TestUpdateTrackOnlySetFields(t *testing.T) {
	b, _ := EncodeRequest(NewPacketID(), UpdateTrack{Key: "k", Album: strp("")})
	req, _ := DecodeRequest(b)
	u := req.Action.(UpdateTrack)
	if u.Title != nil || u.Album == nil || *u.Album != "" {
		t.Fatalf("got %+v", u)
	}
}

func TestEncodeUnencodable(t *testing.T) {
	cases := []Action{
		nil,
		GetTrack{},
		AddToPlaylist{Key: "k"},
		Download{Format: "zip"},
		UploadTrack{Format: "mp3"},
		Search{Query: string([]byte{0xff, 0xfe})},
	}
	for _, a := range cases {
		b, err := EncodeRequest(NewPacketID(), a)
		if !errors.Is(err, ErrUnencodable) {
			t.Errorf("%#v: err = %v", a, err)
		}
		if b != nil {
			t.Errorf("%#v: produced bytes", a)
		}
	}
}

func TestAnswerSearch(t *testing.T) {
	id := NewPacketID()
	want := SearchResult{
		Query: "q",
		Tracks: []Track{
			{Key: "a", Title: "One", Duration: 181.5, Channels: 2},
			{Key: "b", Interpret: "X", FavsCount: 3},
		},
		More: true,
	}
	a, err := DecodeAnswer(EncodeAnswer(id, OpSearch, want))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != id || a.Op != OpSearch || a.Err != nil {
		t.Fatalf("header %+v", a)
	}
	got := a.Result.(SearchResult)
	if got.Query != "q" || !got.More || len(got.Tracks) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Tracks[0] != want.Tracks[0] || got.Tracks[1] != want.Tracks[1] {
		t.Fatalf("tracks %+v", got.Tracks)
	}
}

func TestAnswerToken(t *testing.T) {
	pl := Playlist{Key: "p", Title: "Mix", Count: 2}
	in := TokenResult{
		Token:    Token{Token: 3, Key: "p", Played: []string{"a", "b"}, Pos: 4.25},
		Playlist: &pl,
		Tracks:   []Track{{Key: "a"}, {Key: "b"}},
	}
	a, err := DecodeAnswer(EncodeAnswer(NewPacketID(), OpGetToken, in))
	if err != nil {
		t.Fatal(err)
	}
	got := a.Result.(TokenResult)
	if got.Token.Pos != 4.25 || len(got.Token.Played) != 2 || got.Playlist == nil || *got.Playlist != pl {
		t.Fatalf("got %+v", got)
	}

	a, _ = DecodeAnswer(EncodeAnswer(NewPacketID(), OpGetToken, TokenResult{Token: Token{Token: 9}}))
	if a.Result.(TokenResult).Playlist != nil {
		t.Fatal("unbound token decoded with playlist")
	}
}

func TestAnswerLastToken(t *testing.T) {
	a, _ := DecodeAnswer(EncodeAnswer(NewPacketID(), OpLastToken, LastTokenResult{}))
	if a.Result.(LastTokenResult).Found {
		t.Fatal("found without token")
	}
	a, _ = DecodeAnswer(EncodeAnswer(NewPacketID(), OpLastToken, LastTokenResult{Token: 0, Found: true}))
	if r := a.Result.(LastTokenResult); !r.Found || r.Token != 0 {
		t.Fatalf("got %+v", r)
	}
}

func TestAnswerAppError(t *testing.T) {
	id := NewPacketID()
	a, err := DecodeAnswer(EncodeError(id, OpStreamNext, "MusicContainer(ReachedEnd)"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != id || a.Err == nil || a.Result != nil {
		t.Fatalf("got %+v", a)
	}
	if _, err := a.Value(); err == nil {
		t.Fatal("Value hid the error")
	}
}

func TestAnswerTruncated(t *testing.T) {
	full := EncodeAnswer(NewPacketID(), OpStreamNext, StreamPacket{Data: make([]byte, 64)})
	for _, n := range []int{1, 5, 17, len(full) - 1} {
		if _, err := DecodeAnswer(full[:n]); !errors.Is(err, ErrTruncated) {
			t.Errorf("len %d: err = %v", n, err)
		}
	}
}

func TestAnswerUnknownOp(t *testing.T) {
	id := NewPacketID()
	a, err := DecodeAnswer(EncodeAnswer(id, Op(200), Empty{}))
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("err = %v", err)
	}
	if a == nil || a.ID != id {
		t.Fatal("id not reported with unknown op")
	}
}

func TestWideOpTagRejected(t *testing.T) {
	id := NewPacketID()
	tag := uint64(1)<<32 | uint64(OpSearch)

	b := appendBytes(nil, fieldID, id.bytes())
	b = appendUint(b, fieldOp, tag)
	a, err := DecodeAnswer(appendBytes(b, fieldResult, Empty{}.appendResult(nil)))
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("answer err = %v", err)
	}
	if a == nil || a.ID != id {
		t.Fatal("id not reported with wide op")
	}

	b = appendBytes(nil, fieldID, id.bytes())
	b = appendUint(b, fieldOp, tag)
	req, err := DecodeRequest(appendBytes(b, fieldParams, nil))
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("request err = %v", err)
	}
	if req.ID != id || req.Action != nil {
		t.Fatalf("got %+v", req)
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	id := NewPacketID()
	b := EncodeAnswer(id, OpStreamSeek, StreamSeekResult{Sample: 96000})
	b = appendString(b, 15, "future")
	b = appendDouble(b, 16, 1.5)
	a, err := DecodeAnswer(b)
	if err != nil {
		t.Fatal(err)
	}
	if a.Result.(StreamSeekResult).Sample != 96000 {
		t.Fatalf("got %+v", a.Result)
	}
}

func TestPeopleList(t *testing.T) {
	tr := Track{People: "vocals:Anna; guitar:Ben, Carl"}
	got := tr.PeopleList()
	want := []Person{{"vocals", "Anna"}, {"guitar", "Ben"}, {"", "Carl"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("[%d] = %+v", i, got[i])
		}
	}
}
