package storage

import "time"

// Play is one entry of the local play log.
type Play struct {
	Key      string
	PlayedAt time.Time
}

// LogPlay records that key started playing.
func (d *DB) LogPlay(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`INSERT INTO _plays (track_key) VALUES (?)`, key)
	return err
}

// RecentPlays returns the last limit plays, newest first.
func (d *DB) RecentPlays(limit int) ([]Play, error) {
	if limit <= 0 {
		limit = 50
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT track_key, played_at FROM _plays
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Play
	for rows.Next() {
		var p Play
		var at any
		if err := rows.Scan(&p.Key, &at); err != nil {
			return nil, err
		}
		p.PlayedAt = parseTime(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PrunePlays keeps only the newest keep entries.
func (d *DB) PrunePlays(keep int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		DELETE FROM _plays WHERE id NOT IN (
			SELECT id FROM _plays ORDER BY id DESC LIMIT ?
		)`, keep)
	return err
}

// parseTime accepts a DATETIME column as the driver hands it out: parsed,
// or as text in SQLite's CURRENT_TIMESTAMP format.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		p, _ := time.Parse(time.DateTime, t)
		return p
	case []byte:
		p, _ := time.Parse(time.DateTime, string(t))
		return p
	}
	return time.Time{}
}
