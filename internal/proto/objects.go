package proto

import (
	"strings"
)

// Track is the metadata record of one stored track.
type Track struct {
	Key         string
	Title       string
	Album       string
	Interpret   string
	People      string
	Composer    string
	Fingerprint string
	Duration    float64 // seconds
	FavsCount   uint32
	Channels    uint32
}

// Person is one "role:name" entry of Track.People.
type Person struct {
	Role string
	Name string
}

// PeopleList splits the free-form people field. Entries are separated by ';'
// or ','; an entry without a role gets an empty Role.
func (t Track) PeopleList() []Person {
	var out []Person
	for _, part := range strings.FieldsFunc(t.People, func(r rune) bool { return r == ';' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		role, name, ok := strings.Cut(part, ":")
		if !ok {
			out = append(out, Person{Name: part})
			continue
		}
		out = append(out, Person{Role: strings.TrimSpace(role), Name: strings.TrimSpace(name)})
	}
	return out
}

// DisplayName is "interpret - title", falling back to the key.
func (t Track) DisplayName() string {
	switch {
	case t.Title != "" && t.Interpret != "":
		return t.Interpret + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.Key
	}
}

func (t Track) appendTo(b []byte) []byte {
	b = appendString(b, 1, t.Key)
	b = appendOptString(b, 2, t.Title)
	b = appendOptString(b, 3, t.Album)
	b = appendOptString(b, 4, t.Interpret)
	b = appendOptString(b, 5, t.People)
	b = appendOptString(b, 6, t.Composer)
	b = appendDouble(b, 7, t.Duration)
	b = appendUint(b, 8, uint64(t.FavsCount))
	b = appendUint(b, 9, uint64(t.Channels))
	b = appendOptString(b, 10, t.Fingerprint)
	return b
}

func trackFrom(m msg) Track {
	return Track{
		Key:         m.str(1),
		Title:       m.str(2),
		Album:       m.str(3),
		Interpret:   m.str(4),
		People:      m.str(5),
		Composer:    m.str(6),
		Duration:    m.double(7),
		FavsCount:   uint32(m.uint(8)),
		Channels:    uint32(m.uint(9)),
		Fingerprint: m.str(10),
	}
}

// Playlist is a named, ordered collection of track keys.
type Playlist struct {
	Key   string
	Title string
	Desc  string
	Count uint32
}

func (p Playlist) appendTo(b []byte) []byte {
	b = appendString(b, 1, p.Key)
	b = appendOptString(b, 2, p.Title)
	b = appendOptString(b, 3, p.Desc)
	b = appendUint(b, 4, uint64(p.Count))
	return b
}

func playlistFrom(m msg) Playlist {
	return Playlist{
		Key:   m.str(1),
		Title: m.str(2),
		Desc:  m.str(3),
		Count: uint32(m.uint(4)),
	}
}

// Token is a physical token bound to a playlist and a listening position.
type Token struct {
	Token  uint32
	Key    string   // playlist key, empty when unbound
	Played []string // track keys already heard
	Pos    float64  // seconds into the current track
}

func (t Token) appendTo(b []byte) []byte {
	b = appendUint(b, 1, uint64(t.Token))
	b = appendOptString(b, 2, t.Key)
	for _, k := range t.Played {
		b = appendString(b, 3, k)
	}
	b = appendDouble(b, 4, t.Pos)
	return b
}

func tokenFrom(m msg) Token {
	return Token{
		Token:  uint32(m.uint(1)),
		Key:    m.str(2),
		Played: m.strings(3),
		Pos:    m.double(4),
	}
}

// UploadProgress reports one running upload or youtube import.
type UploadProgress struct {
	ID       PacketID
	Desc     string
	Kind     string
	Progress float32
	Key      string // set once the track is stored
}

func (u UploadProgress) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, u.ID.bytes())
	b = appendOptString(b, 2, u.Desc)
	b = appendOptString(b, 3, u.Kind)
	b = appendFloat(b, 4, u.Progress)
	b = appendOptString(b, 5, u.Key)
	return b
}

func uploadProgressFrom(m msg) UploadProgress {
	id, _ := packetIDFrom(m.bytes(1))
	return UploadProgress{
		ID:       id,
		Desc:     m.str(2),
		Kind:     m.str(3),
		Progress: m.float(4),
		Key:      m.str(5),
	}
}

// DownloadProgress reports one running archive download.
type DownloadProgress struct {
	ID       PacketID
	Format   string
	Progress float32
	Download string // path of the finished archive, empty while running
}

func (d DownloadProgress) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, d.ID.bytes())
	b = appendOptString(b, 2, d.Format)
	b = appendFloat(b, 3, d.Progress)
	b = appendOptString(b, 4, d.Download)
	return b
}

func downloadProgressFrom(m msg) DownloadProgress {
	id, _ := packetIDFrom(m.bytes(1))
	return DownloadProgress{
		ID:       id,
		Format:   m.str(2),
		Progress: m.float(3),
		Download: m.str(4),
	}
}

// SummaryDay aggregates the server event log for one day.
type SummaryDay struct {
	Day      string
	Connects uint32
	Plays    uint32
	Adds     uint32
	Removes  uint32
}

func (s SummaryDay) appendTo(b []byte) []byte {
	b = appendString(b, 1, s.Day)
	b = appendUint(b, 2, uint64(s.Connects))
	b = appendUint(b, 3, uint64(s.Plays))
	b = appendUint(b, 4, uint64(s.Adds))
	b = appendUint(b, 5, uint64(s.Removes))
	return b
}

func summaryDayFrom(m msg) SummaryDay {
	return SummaryDay{
		Day:      m.str(1),
		Connects: uint32(m.uint(2)),
		Plays:    uint32(m.uint(3)),
		Adds:     uint32(m.uint(4)),
		Removes:  uint32(m.uint(5)),
	}
}

// Event tags recorded by the server.
const (
	EventConnect    = "connect"
	EventPlaySong   = "playsong"
	EventAddSong    = "addsong"
	EventDeleteSong = "deletesong"
)

// Event is one entry of the server event log.
type Event struct {
	Date   string
	Origin string
	Tag    string
	Data   string
}

func (e Event) appendTo(b []byte) []byte {
	b = appendString(b, 1, e.Date)
	b = appendOptString(b, 2, e.Origin)
	b = appendString(b, 3, e.Tag)
	b = appendOptString(b, 4, e.Data)
	return b
}

func eventFrom(m msg) Event {
	return Event{
		Date:   m.str(1),
		Origin: m.str(2),
		Tag:    m.str(3),
		Data:   m.str(4),
	}
}
