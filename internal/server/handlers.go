package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/nmoreira/spotiproxy/internal/repositories"
	"github.com/nmoreira/spotiproxy/internal/services"
	"github.com/nmoreira/spotiproxy/internal/sessions"
	"github.com/nmoreira/spotiproxy/internal/shared"
)

// multipart form parsing needs headroom beyond the image itself
const maxUploadFormBytes = services.MaxCoverImageBytes + 64*1024

// AuthHandler serves the authorization flow: login redirect, provider
// callback, and logout.
type AuthHandler struct {
	spotify     services.Service
	sessions    *sessions.Manager
	frontendURL string
	logger      *log.Logger
}

// NewAuthHandler creates an AuthHandler redirecting completed logins to frontendURL.
func NewAuthHandler(spotify services.Service, manager *sessions.Manager, frontendURL string, logger *log.Logger) *AuthHandler {
	return &AuthHandler{
		spotify:     spotify,
		sessions:    manager,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Login redirects the browser to Spotify's authorization endpoint.
//
// A fresh state value is generated per login. The callback does not check it
// against anything; the original service behaved the same way and the gap is
// kept deliberately (see DESIGN.md).
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateID()
	http.Redirect(w, r, h.spotify.AuthURL(state), http.StatusFound)
}

// Callback is Spotify's redirect target for the authorization-code flow.
//
// On success a new session is created and the browser is redirected to the
// frontend with the session identifier in the query string. A missing code is
// a 400; a rejected exchange is a 500 and nothing is stored.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			respondError(w, h.logger, fmt.Errorf("%w: authorization denied: %s", shared.ErrBadRequest, errParam))
			return
		}
		respondError(w, h.logger, fmt.Errorf("%w: authorization code not provided", shared.ErrBadRequest))
		return
	}

	token, err := h.spotify.Exchange(r.Context(), code)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	session := h.sessions.Create(token)
	http.Redirect(w, r, fmt.Sprintf("%s/home?session=%s", h.frontendURL, session.ID), http.StatusFound)
}

// Logout destroys the presented session.
//
// Only needs the session identifier, not a valid access token, so it is not
// behind the guard; logging out of an already-expired session must work.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" || !h.sessions.Destroy(id) {
		respondError(w, h.logger, fmt.Errorf("%w: unknown session", shared.ErrUnauthenticated))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// APIHandler forwards authenticated Web API operations using the access token
// attached by [SessionGuard].
type APIHandler struct {
	spotify services.Service
	cache   *repositories.TrackCacheAdapter
	logger  *log.Logger
}

// NewAPIHandler creates an APIHandler. The track cache may be nil to disable caching.
func NewAPIHandler(spotify services.Service, cache *repositories.TrackCacheAdapter, logger *log.Logger) *APIHandler {
	return &APIHandler{spotify: spotify, cache: cache, logger: logger}
}

// Me returns the Spotify profile of the session's user, verbatim.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, _ := TokenFromContext(r.Context())

	profile, err := h.spotify.Profile(r.Context(), token)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondRaw(w, http.StatusOK, profile)
}

// Search returns up to 5 tracks matching the query parameter.
func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	token, _ := TokenFromContext(r.Context())
	query := r.URL.Query().Get("query")

	tracks, err := h.spotify.SearchTracks(r.Context(), token, query, 5)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.cacheTracks(tracks)
	respondJSON(w, http.StatusOK, tracks)
}

// cacheTracks persists search results best-effort; a cache failure never fails the request.
func (h *APIHandler) cacheTracks(tracks []services.SpotifyTrack) {
	if h.cache == nil {
		return
	}
	for _, track := range tracks {
		if err := h.cache.Cache(track); err != nil {
			h.logger.Warn("failed to cache track", "track", track.ID, "error", err)
		}
	}
}

type createPlaylistRequest struct {
	Name   string   `json:"name"`
	Tracks []string `json:"tracks"`
}

type createPlaylistResponse struct {
	Message     string `json:"message"`
	ID          string `json:"id"`
	ExternalURL string `json:"external_url"`
}

// CreatePlaylist creates a playlist from the posted name and track URIs.
func (h *APIHandler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	token, _ := TokenFromContext(r.Context())

	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: malformed JSON body: %v", shared.ErrBadRequest, err))
		return
	}

	playlist, err := h.spotify.CreatePlaylist(r.Context(), token, req.Name, req.Tracks)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, createPlaylistResponse{
		Message:     "playlist created",
		ID:          playlist.ID,
		ExternalURL: playlist.ExternalURL,
	})
}

// UploadImage replaces the cover image of the playlist named in the path.
//
// Accepts a multipart form with an "image" field holding a JPEG of at most
// 256 KiB; anything else is rejected before Spotify is contacted.
func (h *APIHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	token, _ := TokenFromContext(r.Context())
	playlistID := r.PathValue("playlistId")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFormBytes)
	if err := r.ParseMultipartForm(maxUploadFormBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, h.logger, fmt.Errorf("%w: image upload exceeds %d bytes", shared.ErrPayloadTooLarge, maxErr.Limit))
			return
		}
		respondError(w, h.logger, fmt.Errorf("%w: malformed multipart body: %v", shared.ErrBadRequest, err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: no image provided", shared.ErrBadRequest))
		return
	}
	defer file.Close()

	if declared := header.Header.Get("Content-Type"); declared != "" && declared != "image/jpeg" {
		respondError(w, h.logger, fmt.Errorf("%w: only JPEG images are accepted, got %s", shared.ErrUnsupportedMediaType, declared))
		return
	}

	image, err := io.ReadAll(io.LimitReader(file, services.MaxCoverImageBytes+1))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: failed to read image: %v", shared.ErrBadRequest, err))
		return
	}
	if len(image) > services.MaxCoverImageBytes {
		respondError(w, h.logger, fmt.Errorf("%w: cover image exceeds %d bytes", shared.ErrPayloadTooLarge, services.MaxCoverImageBytes))
		return
	}

	if err := h.spotify.UploadPlaylistImage(r.Context(), token, playlistID, image); err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "playlist image updated"})
}
