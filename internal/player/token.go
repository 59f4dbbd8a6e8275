package player

import (
	"context"
	"fmt"

	"github.com/bytesnake/hex/internal/proto"
)

// LoadToken replaces the queue with a token's playlist. Played tracks come
// first in played order, the current one is the last played, and playback
// resumes at the saved position.
func (e *Engine) LoadToken(ctx context.Context, token uint32) error {
	r, err := e.c.Token(ctx, token)
	if err != nil {
		return fmt.Errorf("load token %d: %w", token, err)
	}
	queue, pos := tokenQueue(r)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeSessionLocked()
	e.queue = queue
	e.pos = pos
	e.token = &token
	if len(queue) == 0 {
		e.resetLocked()
		e.publish(e.eventLocked(QueueChanged))
		return nil
	}
	e.loadLocked()
	if p := r.Token.Pos; p > 0 && p <= queue[pos].Duration {
		e.seekLocked(p)
	}
	e.publish(e.eventLocked(QueueChanged))
	return nil
}

func tokenQueue(r proto.TokenResult) ([]proto.Track, int) {
	byKey := make(map[string]proto.Track, len(r.Tracks))
	for _, t := range r.Tracks {
		byKey[t.Key] = t
	}
	var queue []proto.Track
	played := make(map[string]bool)
	for _, k := range r.Token.Played {
		if t, ok := byKey[k]; ok && !played[k] {
			queue = append(queue, t)
			played[k] = true
		}
	}
	pos := max(len(queue)-1, 0)
	for _, t := range r.Tracks {
		if !played[t.Key] {
			queue = append(queue, t)
		}
	}
	return queue, pos
}

// SaveToken stores the played entries and the position on the token loaded
// last.
func (e *Engine) SaveToken(ctx context.Context) error {
	e.mu.Lock()
	if e.token == nil {
		e.mu.Unlock()
		return ErrNoToken
	}
	token := *e.token
	var played []string
	if len(e.queue) > 0 {
		for _, t := range e.queue[:e.pos+1] {
			played = append(played, t.Key)
		}
	}
	pos := e.elapsedLocked()
	e.mu.Unlock()

	if err := e.c.SaveTokenProgress(ctx, token, played, pos); err != nil {
		return fmt.Errorf("save token %d: %w", token, err)
	}
	return nil
}
