// package services defines interface Service for the upstream music provider
package services

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2"
)

// Service defines the operations the proxy performs against a music provider:
// the authorization flow plus the small set of forwarded API calls.
//
// [SpotifyService] is the production implementation; tests substitute mocks.
type Service interface {
	// Name returns the name of the provider (e.g., "Spotify")
	Name() string

	// AuthURL returns the provider's authorization URL for the given state value.
	AuthURL(state string) string

	// Exchange converts a one-time authorization code into a token pair.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh mints a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Profile retrieves the authenticated user's profile as raw JSON.
	Profile(ctx context.Context, token string) (json.RawMessage, error)

	// SearchTracks searches tracks matching query, returning at most limit results.
	SearchTracks(ctx context.Context, token, query string, limit int) ([]SpotifyTrack, error)

	// CreatePlaylist creates a playlist and attaches the given track URIs.
	CreatePlaylist(ctx context.Context, token, name string, trackURIs []string) (*CreatedPlaylist, error)

	// UploadPlaylistImage replaces a playlist's cover image with the given JPEG.
	UploadPlaylistImage(ctx context.Context, token, playlistID string, image []byte) error
}

var _ Service = (*SpotifyService)(nil)
