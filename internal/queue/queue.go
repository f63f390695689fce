// Package queue implements the cursor-addressed track queue played by the daemon.
package queue

import (
	"fmt"
	"sync"

	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/fault"
)

// Position is the result of a navigation request.
type Position struct {
	Track domain.Track
	Index int

	// AtBoundary is set when the request would have moved past either end of
	// the queue. The cursor did not move; this is informational, not a failure.
	AtBoundary bool
}

// Snapshot is a point-in-time copy of the queue.
type Snapshot struct {
	Tracks []domain.Track `json:"tracks"`
	Index  int            `json:"index"`
}

// Queue holds an ordered track list and a cursor.
//
// Invariant: the queue is either empty (index 0, no current track) or
// 0 <= index < len(tracks). Load swaps the backing slice, so readers never
// see a partially replaced queue.
type Queue struct {
	mu     sync.RWMutex
	tracks []domain.Track
	index  int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Load replaces the queue with a copy of tracks and resets the cursor to 0.
// An empty list fails with fault.ErrEmptyQueue and leaves the queue untouched.
func (q *Queue) Load(tracks []domain.Track) error {
	if len(tracks) == 0 {
		return fmt.Errorf("load queue: %w", fault.ErrEmptyQueue)
	}
	next := make([]domain.Track, len(tracks))
	copy(next, tracks)

	q.mu.Lock()
	q.tracks = next
	q.index = 0
	q.mu.Unlock()
	return nil
}

// Current returns the track under the cursor.
func (q *Queue) Current() (domain.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.tracks) == 0 {
		return domain.Track{}, fault.ErrNoCurrentTrack
	}
	return q.tracks[q.index], nil
}

// Advance moves the cursor forward by one, clamped at the last track.
func (q *Queue) Advance() (Position, error) {
	return q.move(+1)
}

// Retreat moves the cursor back by one, clamped at the first track.
func (q *Queue) Retreat() (Position, error) {
	return q.move(-1)
}

func (q *Queue) move(delta int) (Position, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return Position{}, fault.ErrNoCurrentTrack
	}

	next := q.index + delta
	if next < 0 || next >= len(q.tracks) {
		return Position{Track: q.tracks[q.index], Index: q.index, AtBoundary: true}, nil
	}
	q.index = next
	return Position{Track: q.tracks[q.index], Index: q.index}, nil
}

// Snapshot returns a copy of the tracks and cursor.
func (q *Queue) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	tracks := make([]domain.Track, len(q.tracks))
	copy(tracks, q.tracks)
	return Snapshot{Tracks: tracks, Index: q.index}
}
