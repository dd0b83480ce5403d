// Spotify API client
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nmoreira/spotiproxy/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// MaxCoverImageBytes is the largest JPEG Spotify accepts for playlist covers.
const MaxCoverImageBytes = 256 * 1024

// defaultScopes covers profile reads, public playlist writes, and cover uploads.
var defaultScopes = []string{
	"playlist-modify-public",
	"user-read-private",
	"ugc-image-upload",
}

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"`
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPlaylist represents a Spotify playlist as returned by the create endpoint.
type SpotifyPlaylist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Public       bool              `json:"public"`
	ExternalURLs map[string]string `json:"external_urls"`
	URI          string            `json:"uri"`
}

// CreatedPlaylist is the caller-facing result of a successful playlist creation.
type CreatedPlaylist struct {
	ID          string `json:"id"`
	ExternalURL string `json:"external_url"`
}

// UpstreamError wraps a non-2xx Spotify response, keeping the provider's own
// error payload for diagnostics.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("spotify request failed: status %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return shared.ErrUpstream
}

// SpotifyService talks to the Spotify accounts service and Web API.
//
// Authorization uses [oauth2]; Web API calls attach whatever bearer token the
// caller supplies, so one service instance serves every session.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// The credentials map must contain "client_id", "client_secret", and
// "redirect_uri"; "scopes" (space-separated) is optional.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingCredentials)
	}

	scopes := defaultScopes
	if raw, ok := credentials["scopes"]; ok && raw != "" {
		scopes = strings.Fields(raw)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange performs the authorization-code exchange against the token endpoint.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", shared.ErrBadRequest)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthExchange, err)
	}
	return token, nil
}

// Refresh exchanges a refresh token for a new access token.
//
// When Spotify does not rotate the refresh token, the returned token carries
// the one passed in.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", shared.ErrMissingCredentials)
	}

	source := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return token, nil
}

// oauthContext injects the service's HTTP client into the oauth2 machinery.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// doRequest performs an authenticated HTTP request against the Web API.
//
// A nil contentType defaults to application/json. Non-2xx responses become an
// [UpstreamError] carrying the response body.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint, token, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &UpstreamError{Status: resp.StatusCode, Body: payload}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// postJSON marshals body and POSTs it to the given endpoint.
func (s *SpotifyService) postJSON(ctx context.Context, endpoint, token string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return s.doRequest(ctx, http.MethodPost, endpoint, token, "application/json", bytes.NewReader(data), result)
}

// Profile retrieves the authenticated user's profile as raw JSON.
//
// The payload is passed through to the client verbatim.
func (s *SpotifyService) Profile(ctx context.Context, token string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.doRequest(ctx, http.MethodGet, "/me", token, "", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SearchTracks searches for tracks matching the query, returning at most limit results.
//
// Fails before any upstream call when the query is empty. A limit outside
// (0, 50] falls back to 5, matching the proxy's search endpoint.
func (s *SpotifyService) SearchTracks(ctx context.Context, token, query string, limit int) ([]SpotifyTrack, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrBadRequest)
	}
	if limit <= 0 || limit > 50 {
		limit = 5
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, token, "", nil, &response); err != nil {
		return nil, err
	}

	return response.Tracks.Items, nil
}

// CreatePlaylist creates a public playlist for the authenticated user and attaches the given track URIs.
//
// Three upstream calls: resolve the user id, create the playlist, attach the
// tracks. The two write steps are not atomic; when attaching fails after
// creation succeeded, the error names the already-created playlist and the
// empty playlist is not rolled back.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, token, name string, trackURIs []string) (*CreatedPlaylist, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrBadRequest)
	}
	if len(trackURIs) == 0 {
		return nil, fmt.Errorf("%w: at least one track URI is required", shared.ErrBadRequest)
	}

	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", token, "", nil, &user); err != nil {
		return nil, err
	}

	var playlist SpotifyPlaylist
	createBody := map[string]any{
		"name":        name,
		"public":      true,
		"description": "Created with spotiproxy",
	}
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))
	if err := s.postJSON(ctx, endpoint, token, createBody, &playlist); err != nil {
		return nil, err
	}

	attachBody := map[string]any{"uris": trackURIs}
	endpoint = fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlist.ID))
	if err := s.postJSON(ctx, endpoint, token, attachBody, nil); err != nil {
		return nil, fmt.Errorf("playlist %s created but attaching tracks failed: %w", playlist.ID, err)
	}

	return &CreatedPlaylist{
		ID:          playlist.ID,
		ExternalURL: playlist.ExternalURLs["spotify"],
	}, nil
}

// UploadPlaylistImage replaces a playlist's cover image.
//
// The image must be a JPEG of at most [MaxCoverImageBytes]; both checks run
// before any upstream call. Spotify requires the body base64-encoded.
func (s *SpotifyService) UploadPlaylistImage(ctx context.Context, token, playlistID string, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: no image provided", shared.ErrBadRequest)
	}
	if len(image) > MaxCoverImageBytes {
		return fmt.Errorf("%w: cover image exceeds %d bytes", shared.ErrPayloadTooLarge, MaxCoverImageBytes)
	}
	if http.DetectContentType(image) != "image/jpeg" {
		return fmt.Errorf("%w: cover image must be a JPEG", shared.ErrUnsupportedMediaType)
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	endpoint := fmt.Sprintf("/playlists/%s/images", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodPut, endpoint, token, "image/jpeg", strings.NewReader(encoded), nil)
}
