// Package recommend maps a mood label to an ordered list of playable tracks.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/mood"
	"github.com/vaishakh3/emomusic/internal/spotifyapi"
)

const (
	// DefaultLimit is the queue length requested per mood change.
	DefaultLimit = 20

	// maxLimit is the Web API ceiling for /recommendations.
	maxLimit = 100
)

// Fetcher requests up to limit tracks for a mood. Implementations must not
// retry on their own; failures are returned to the caller.
type Fetcher interface {
	Recommend(ctx context.Context, m mood.Label, limit int) ([]domain.Track, error)
}

// seeds is the fixed mood -> genre-seed table.
var seeds = map[mood.Label][]string{
	mood.Sad:       {"acoustic", "piano"},
	mood.Neutral:   {"pop", "indie"},
	mood.Happy:     {"happy", "feel-good"},
	mood.Energetic: {"dance", "electronic"},
}

var fallbackSeeds = []string{"pop"}

// Seeds returns the genre seeds for m. Unknown moods fall back to {pop}.
func Seeds(m mood.Label) []string {
	s, ok := seeds[m]
	if !ok {
		s = fallbackSeeds
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// SpotifyFetcher implements Fetcher with the Web API recommendations endpoint.
type SpotifyFetcher struct {
	client *spotify.Client
	logger *slog.Logger
}

var _ Fetcher = (*SpotifyFetcher)(nil)

// NewSpotifyFetcher wraps an authenticated client.
func NewSpotifyFetcher(client *spotify.Client, logger *slog.Logger) *SpotifyFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpotifyFetcher{client: client, logger: logger}
}

// Recommend fetches recommendations seeded by the mood's genres.
func (f *SpotifyFetcher) Recommend(ctx context.Context, m mood.Label, limit int) ([]domain.Track, error) {
	genres := Seeds(m)
	limit = clampLimit(limit)

	f.logger.Debug("fetching recommendations", "mood", m, "seed_genres", strings.Join(genres, ","), "limit", limit)

	recs, err := f.client.GetRecommendations(ctx, spotify.Seeds{Genres: genres}, nil, spotify.Limit(limit))
	if err != nil {
		f.logger.Debug("recommendations request failed", "mood", m, "error", spotifyapi.Describe(err))
		return nil, fmt.Errorf("%w: recommendations for %s: %w", fault.ErrNetwork, m, err)
	}
	if recs == nil || len(recs.Tracks) == 0 {
		return nil, fmt.Errorf("%w: no recommendations for %s", fault.ErrEmptyResult, m)
	}

	tracks := make([]domain.Track, 0, len(recs.Tracks))
	for _, st := range recs.Tracks {
		if st.URI == "" {
			continue
		}
		tracks = append(tracks, mapSimpleTrack(st))
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no playable recommendations for %s", fault.ErrEmptyResult, m)
	}
	return tracks, nil
}

func mapSimpleTrack(st spotify.SimpleTrack) domain.Track {
	t := domain.Track{
		ID:    string(st.ID),
		Title: st.Name,
		URI:   string(st.URI),
	}
	if len(st.Artists) > 0 {
		t.Artist = st.Artists[0].Name
	}
	if len(st.Album.Images) > 0 {
		t.AlbumArtURL = st.Album.Images[0].URL
	}
	return t
}
