package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nmoreira/spotiproxy/internal/shared"
)

// CachedTrack is a search result persisted for cross-request reuse.
//
// Service plus ServiceID uniquely identify a track; the same song seen twice
// is stored once.
type CachedTrack struct {
	ID         string
	Service    string
	ServiceID  string
	Title      string
	Artist     string
	Album      string
	URI        string
	DurationMS int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TrackRepository handles CRUD for [CachedTrack] records.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new cached track with a generated ID and timestamps.
func (r *TrackRepository) Create(track *CachedTrack) error {
	if track.Service == "" || track.ServiceID == "" || track.Title == "" {
		return fmt.Errorf("invalid track: service, service_id, and title are required")
	}

	now := time.Now()
	track.ID = shared.GenerateID()
	track.CreatedAt = now
	track.UpdatedAt = now

	query := `
		INSERT INTO tracks (id, service, service_id, title, artist, album, uri, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		track.ID,
		track.Service,
		track.ServiceID,
		track.Title,
		track.Artist,
		track.Album,
		track.URI,
		track.DurationMS,
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// GetByServiceID retrieves a track by service and service-specific identifier.
func (r *TrackRepository) GetByServiceID(service, serviceID string) (*CachedTrack, error) {
	query := `
		SELECT id, service, service_id, title, artist, album, uri, duration_ms, created_at, updated_at
		FROM tracks
		WHERE service = ? AND service_id = ?
	`

	var track CachedTrack
	err := r.db.QueryRow(query, service, serviceID).Scan(
		&track.ID,
		&track.Service,
		&track.ServiceID,
		&track.Title,
		&track.Artist,
		&track.Album,
		&track.URI,
		&track.DurationMS,
		&track.CreatedAt,
		&track.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", shared.ErrTrackNotFound, service, serviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}

	return &track, nil
}

// Count returns the number of cached tracks.
func (r *TrackRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}
