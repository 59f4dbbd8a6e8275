// Package proto is the wire schema shared between the hex client and the hex
// server: packet identifiers, the closed operation set, the records exchanged
// and the binary frame codec.
package proto

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultPort is the fixed websocket port of the hex server.
	DefaultPort = 2794

	// Subprotocol is offered during the websocket handshake.
	Subprotocol = "rust-websocket"

	// SourceRate is the sample rate of PCM packets produced by the server.
	SourceRate = 48000
)

// PacketID correlates a request with its answer(s). One id may be reused by
// several sequential requests (stream pulls, search pages) to form a session.
type PacketID [4]uint32

// NewPacketID returns a random id derived from a v4 uuid.
func NewPacketID() PacketID {
	u := uuid.New()
	var id PacketID
	for i := range id {
		id[i] = binary.LittleEndian.Uint32(u[i*4:])
	}
	return id
}

func (id PacketID) IsZero() bool { return id == PacketID{} }

func (id PacketID) String() string {
	return fmt.Sprintf("%08x%08x%08x%08x", id[0], id[1], id[2], id[3])
}

// Short is the first eight hex digits, for log lines.
func (id PacketID) Short() string { return fmt.Sprintf("%08x", id[0]) }

func (id PacketID) bytes() []byte {
	b := make([]byte, 16)
	for i, w := range id {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func packetIDFrom(b []byte) (PacketID, bool) {
	var id PacketID
	if len(b) != 16 {
		return id, false
	}
	for i := range id {
		id[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return id, true
}

// Op is the operation tag. The set is closed: adding an operation means
// updating client and server together.
type Op uint32

const (
	OpInvalid Op = iota
	OpSearch
	OpGetTrack
	OpStreamNext
	OpStreamEnd
	OpStreamSeek
	OpUpdateTrack
	OpGetSuggestion
	OpAddPlaylist
	OpDeletePlaylist
	OpSetPlaylistImage
	OpAddToPlaylist
	OpDeleteFromPlaylist
	OpUpdatePlaylist
	OpGetPlaylists
	OpGetPlaylist
	OpGetPlaylistsOfTrack
	OpDeleteTrack
	OpUploadYoutube
	OpUploadTrack
	OpVoteForTrack
	OpAskUploadProgress
	OpGetToken
	OpUpdateToken
	OpCreateToken
	OpLastToken
	OpGetSummarise
	OpGetEvents
	OpDownload
	OpAskDownloadProgress
	OpClearBuffer

	opCount
)

var opNames = [...]string{
	OpInvalid:             "invalid",
	OpSearch:              "search",
	OpGetTrack:            "get_track",
	OpStreamNext:          "stream_next",
	OpStreamEnd:           "stream_end",
	OpStreamSeek:          "stream_seek",
	OpUpdateTrack:         "update_track",
	OpGetSuggestion:       "get_suggestion",
	OpAddPlaylist:         "add_playlist",
	OpDeletePlaylist:      "delete_playlist",
	OpSetPlaylistImage:    "set_playlist_image",
	OpAddToPlaylist:       "add_to_playlist",
	OpDeleteFromPlaylist:  "delete_from_playlist",
	OpUpdatePlaylist:      "update_playlist",
	OpGetPlaylists:        "get_playlists",
	OpGetPlaylist:         "get_playlist",
	OpGetPlaylistsOfTrack: "get_playlists_of_track",
	OpDeleteTrack:         "delete_track",
	OpUploadYoutube:       "upload_youtube",
	OpUploadTrack:         "upload_track",
	OpVoteForTrack:        "vote_for_track",
	OpAskUploadProgress:   "ask_upload_progress",
	OpGetToken:            "get_token",
	OpUpdateToken:         "update_token",
	OpCreateToken:         "create_token",
	OpLastToken:           "last_token",
	OpGetSummarise:        "get_summarise",
	OpGetEvents:           "get_events",
	OpDownload:            "download",
	OpAskDownloadProgress: "ask_download_progress",
	OpClearBuffer:         "clear_buffer",
}

// Valid reports whether op belongs to the closed operation set.
func (op Op) Valid() bool { return op > OpInvalid && op < opCount }

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint32(op))
}
