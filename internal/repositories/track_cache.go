package repositories

import (
	"fmt"
	"strings"

	"github.com/nmoreira/spotiproxy/internal/services"
)

// TrackCacheAdapter caches Spotify search results through a [TrackRepository].
//
// Deduplication relies on the service+service_id UNIQUE constraint; duplicate
// tracks are silently ignored.
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// Cache stores a Spotify track if it has not been seen before.
//
// Returns nil for already-cached tracks; only actual failures surface.
func (a *TrackCacheAdapter) Cache(track services.SpotifyTrack) error {
	if existing, err := a.repo.GetByServiceID("spotify", track.ID); err == nil && existing != nil {
		return nil
	}

	cached := CachedTrack{
		Service:    "spotify",
		ServiceID:  track.ID,
		Title:      track.Name,
		Album:      track.Album.Name,
		URI:        track.URI,
		DurationMS: track.DurationMS,
	}
	if len(track.Artists) > 0 {
		cached.Artist = track.Artists[0].Name
	}

	if err := a.repo.Create(&cached); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to cache track: %w", err)
	}

	return nil
}
