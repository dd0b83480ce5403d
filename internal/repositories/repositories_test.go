package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/nmoreira/spotiproxy/internal/services"
	"github.com/nmoreira/spotiproxy/internal/shared"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func sampleTrack() *CachedTrack {
	return &CachedTrack{
		Service:    "spotify",
		ServiceID:  "t1",
		Title:      "One More Time",
		Artist:     "Daft Punk",
		Album:      "Discovery",
		URI:        "spotify:track:t1",
		DurationMS: 320000,
	}
}

func TestTrackRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		track := sampleTrack()
		if err := repo.Create(track); err != nil {
			t.Fatalf("expected create to succeed, got %v", err)
		}

		if track.ID == "" {
			t.Error("expected an identifier to be generated")
		}
		if track.CreatedAt.IsZero() || track.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be set")
		}
	})

	t.Run("Create Validates Required Fields", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		track := sampleTrack()
		track.Title = ""
		if err := repo.Create(track); err == nil {
			t.Error("expected error for missing title")
		}
	})

	t.Run("Create Rejects Duplicates", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		if err := repo.Create(sampleTrack()); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if err := repo.Create(sampleTrack()); err == nil {
			t.Error("expected unique constraint violation for duplicate track")
		}
	})

	t.Run("GetByServiceID", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		created := sampleTrack()
		if err := repo.Create(created); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		track, err := repo.GetByServiceID("spotify", "t1")
		if err != nil {
			t.Fatalf("expected track to be found, got %v", err)
		}
		if track.ID != created.ID || track.Title != "One More Time" {
			t.Errorf("unexpected track: %+v", track)
		}
	})

	t.Run("GetByServiceID Not Found", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		_, err := repo.GetByServiceID("spotify", "missing")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("Count", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		count, err := repo.Count()
		if err != nil || count != 0 {
			t.Fatalf("expected empty repository, got %d (%v)", count, err)
		}

		if err := repo.Create(sampleTrack()); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		count, err = repo.Count()
		if err != nil || count != 1 {
			t.Errorf("expected 1 track, got %d (%v)", count, err)
		}
	})
}

func TestTrackCacheAdapter(t *testing.T) {
	spotifyTrack := services.SpotifyTrack{
		ID:         "t1",
		Name:       "One More Time",
		URI:        "spotify:track:t1",
		DurationMS: 320000,
		Artists:    []services.SpotifyArtist{{ID: "a1", Name: "Daft Punk"}},
		Album:      services.SpotifyAlbum{ID: "al1", Name: "Discovery"},
	}

	t.Run("Caches New Track", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		adapter := NewTrackCacheAdapter(repo)

		if err := adapter.Cache(spotifyTrack); err != nil {
			t.Fatalf("expected cache to succeed, got %v", err)
		}

		track, err := repo.GetByServiceID("spotify", "t1")
		if err != nil {
			t.Fatalf("expected cached track, got %v", err)
		}
		if track.Artist != "Daft Punk" || track.Album != "Discovery" {
			t.Errorf("unexpected cached track: %+v", track)
		}
	})

	t.Run("Ignores Already Cached", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		adapter := NewTrackCacheAdapter(repo)

		if err := adapter.Cache(spotifyTrack); err != nil {
			t.Fatalf("first cache failed: %v", err)
		}
		if err := adapter.Cache(spotifyTrack); err != nil {
			t.Errorf("expected duplicate to be ignored, got %v", err)
		}

		count, err := repo.Count()
		if err != nil || count != 1 {
			t.Errorf("expected 1 cached track, got %d (%v)", count, err)
		}
	})

	t.Run("Handles Track Without Artists", func(t *testing.T) {
		adapter := NewTrackCacheAdapter(NewTrackRepository(setupTestDB(t)))

		bare := spotifyTrack
		bare.Artists = nil
		if err := adapter.Cache(bare); err != nil {
			t.Errorf("expected cache to succeed without artists, got %v", err)
		}
	})
}
