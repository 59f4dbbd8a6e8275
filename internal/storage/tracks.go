package storage

import (
	"database/sql"
	"strings"

	"github.com/bytesnake/hex/internal/proto"
)

const trackCols = `key, title, album, interpret, people, composer, fingerprint, duration, favs_count, channels`

// PutTrack stores or fully replaces a track snapshot.
func (d *DB) PutTrack(t proto.Track) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO _tracks (`+trackCols+`, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			title       = excluded.title,
			album       = excluded.album,
			interpret   = excluded.interpret,
			people      = excluded.people,
			composer    = excluded.composer,
			fingerprint = excluded.fingerprint,
			duration    = excluded.duration,
			favs_count  = excluded.favs_count,
			channels    = excluded.channels,
			fetched_at  = CURRENT_TIMESTAMP`,
		t.Key, t.Title, t.Album, t.Interpret, t.People, t.Composer, t.Fingerprint,
		t.Duration, t.FavsCount, t.Channels,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(s scanner) (proto.Track, error) {
	var t proto.Track
	err := s.Scan(&t.Key, &t.Title, &t.Album, &t.Interpret, &t.People, &t.Composer,
		&t.Fingerprint, &t.Duration, &t.FavsCount, &t.Channels)
	return t, err
}

// Track returns the cached snapshot of key.
func (d *DB) Track(key string) (proto.Track, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, err := scanTrack(d.db.QueryRow(`SELECT `+trackCols+` FROM _tracks WHERE key = ?`, key))
	if err == sql.ErrNoRows {
		return proto.Track{}, false, nil
	}
	if err != nil {
		return proto.Track{}, false, err
	}
	return t, true, nil
}

// DeleteTrack removes a snapshot. Deleting an unknown key is not an error.
func (d *DB) DeleteTrack(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`DELETE FROM _tracks WHERE key = ?`, key)
	return err
}

// SearchTracks matches query against title, album and interpret of cached
// tracks. An empty query lists everything, most recently fetched first.
func (d *DB) SearchTracks(query string, limit int) ([]proto.Track, error) {
	if limit <= 0 {
		limit = 100
	}
	like := "%" + strings.ToLower(query) + "%"
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT `+trackCols+` FROM _tracks
		WHERE lower(title) LIKE ? OR lower(album) LIKE ? OR lower(interpret) LIKE ?
		ORDER BY fetched_at DESC, key
		LIMIT ?`, like, like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []proto.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTracks returns the number of cached snapshots.
func (d *DB) CountTracks() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM _tracks`).Scan(&n)
	return n, err
}
