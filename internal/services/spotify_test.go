package services

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nmoreira/spotiproxy/internal/shared"
)

// jpegBytes returns a buffer of the given size starting with a valid JPEG
// signature, enough for content sniffing without a real image.
func jpegBytes(size int) []byte {
	buf := make([]byte, size)
	copy(buf, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return buf
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func testCredentials() map[string]string {
	return map[string]string{
		"client_id":     "test_client_id",
		"client_secret": "test_client_secret",
		"redirect_uri":  "http://localhost:3001/api/callback",
	}
}

func newTestService(t *testing.T) *SpotifyService {
	t.Helper()
	srv, err := NewSpotifyService(testCredentials())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return srv
}

func TestNewSpotifyService(t *testing.T) {
	t.Run("With Valid Credentials", func(t *testing.T) {
		srv := newTestService(t)
		if srv.Name() != "Spotify" {
			t.Errorf("expected service name 'Spotify', got %s", srv.Name())
		}
	})

	t.Run("Missing Client ID", func(t *testing.T) {
		creds := testCredentials()
		delete(creds, "client_id")
		if _, err := NewSpotifyService(creds); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Missing Client Secret", func(t *testing.T) {
		creds := testCredentials()
		creds["client_secret"] = ""
		if _, err := NewSpotifyService(creds); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Missing Redirect URI", func(t *testing.T) {
		creds := testCredentials()
		delete(creds, "redirect_uri")
		if _, err := NewSpotifyService(creds); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Custom Scopes", func(t *testing.T) {
		creds := testCredentials()
		creds["scopes"] = "user-read-private"

		srv, err := NewSpotifyService(creds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(srv.config.Scopes) != 1 || srv.config.Scopes[0] != "user-read-private" {
			t.Errorf("expected custom scopes, got %v", srv.config.Scopes)
		}
	})
}

func TestAuthURL(t *testing.T) {
	srv := newTestService(t)

	authURL := srv.AuthURL("test_state")
	if !strings.Contains(authURL, "accounts.spotify.com") {
		t.Error("auth URL should contain Spotify domain")
	}
	if !strings.Contains(authURL, "test_client_id") {
		t.Error("auth URL should contain client_id")
	}
	if !strings.Contains(authURL, "test_state") {
		t.Error("auth URL should contain state")
	}
	if !strings.Contains(authURL, "playlist-modify-public") {
		t.Error("auth URL should request the default scopes")
	}
}

// newTokenServer stands in for the accounts token endpoint, answering every
// POST with the given status and JSON body and counting requests.
func newTokenServer(t *testing.T, status int, body string, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestExchange(t *testing.T) {
	ctx := t.Context()

	t.Run("Success", func(t *testing.T) {
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusOK,
			`{"access_token":"A1","token_type":"Bearer","refresh_token":"R1","expires_in":3600}`, nil)
		srv.config.Endpoint.TokenURL = server.URL

		before := time.Now()
		token, err := srv.Exchange(ctx, "valid123")
		if err != nil {
			t.Fatalf("expected exchange to succeed, got %v", err)
		}

		if token.AccessToken != "A1" {
			t.Errorf("expected access token A1, got %s", token.AccessToken)
		}
		if token.RefreshToken != "R1" {
			t.Errorf("expected refresh token R1, got %s", token.RefreshToken)
		}

		want := before.Add(3600 * time.Second)
		if token.Expiry.Before(want.Add(-time.Minute)) || token.Expiry.After(want.Add(time.Minute)) {
			t.Errorf("expected expiry near %v, got %v", want, token.Expiry)
		}
	})

	t.Run("Provider Rejects Code", func(t *testing.T) {
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)
		srv.config.Endpoint.TokenURL = server.URL

		_, err := srv.Exchange(ctx, "expired456")
		if !errors.Is(err, shared.ErrAuthExchange) {
			t.Errorf("expected ErrAuthExchange, got %v", err)
		}
	})

	t.Run("Missing Code", func(t *testing.T) {
		var requests atomic.Int64
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusOK, `{}`, &requests)
		srv.config.Endpoint.TokenURL = server.URL

		if _, err := srv.Exchange(ctx, ""); !errors.Is(err, shared.ErrBadRequest) {
			t.Errorf("expected ErrBadRequest, got %v", err)
		}
		if requests.Load() != 0 {
			t.Error("expected no token request for a missing code")
		}
	})
}

func TestRefresh(t *testing.T) {
	ctx := t.Context()

	t.Run("Without Rotation", func(t *testing.T) {
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusOK,
			`{"access_token":"A2","token_type":"Bearer","expires_in":3600}`, nil)
		srv.config.Endpoint.TokenURL = server.URL

		token, err := srv.Refresh(ctx, "R1")
		if err != nil {
			t.Fatalf("expected refresh to succeed, got %v", err)
		}
		if token.AccessToken != "A2" {
			t.Errorf("expected access token A2, got %s", token.AccessToken)
		}
		// oauth2 carries the request's refresh token through when the
		// provider does not rotate it.
		if token.RefreshToken != "R1" {
			t.Errorf("expected refresh token R1 preserved, got %s", token.RefreshToken)
		}
	})

	t.Run("With Rotation", func(t *testing.T) {
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusOK,
			`{"access_token":"A2","token_type":"Bearer","refresh_token":"R2","expires_in":3600}`, nil)
		srv.config.Endpoint.TokenURL = server.URL

		token, err := srv.Refresh(ctx, "R1")
		if err != nil {
			t.Fatalf("expected refresh to succeed, got %v", err)
		}
		if token.RefreshToken != "R2" {
			t.Errorf("expected rotated refresh token R2, got %s", token.RefreshToken)
		}
	})

	t.Run("Revoked Token", func(t *testing.T) {
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)
		srv.config.Endpoint.TokenURL = server.URL

		if _, err := srv.Refresh(ctx, "revoked"); err == nil {
			t.Error("expected error for revoked refresh token")
		}
	})

	t.Run("Missing Refresh Token", func(t *testing.T) {
		var requests atomic.Int64
		srv := newTestService(t)
		server := newTokenServer(t, http.StatusOK, `{}`, &requests)
		srv.config.Endpoint.TokenURL = server.URL

		if _, err := srv.Refresh(ctx, ""); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
		if requests.Load() != 0 {
			t.Error("expected no token request without a refresh token")
		}
	})
}

func TestSearchTracks(t *testing.T) {
	ctx := t.Context()

	t.Run("Success", func(t *testing.T) {
		srv := newTestService(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer A1" {
				t.Errorf("expected Authorization 'Bearer A1', got %q", got)
			}
			if r.URL.Path != "/search" {
				t.Errorf("expected path /search, got %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("q") != "daft punk" || q.Get("type") != "track" || q.Get("limit") != "5" {
				t.Errorf("unexpected query: %v", q)
			}

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"tracks":{"items":[
				{"id":"t1","name":"One More Time","uri":"spotify:track:t1","duration_ms":320000,
				 "artists":[{"id":"a1","name":"Daft Punk"}],"album":{"id":"al1","name":"Discovery"}},
				{"id":"t2","name":"Around the World","uri":"spotify:track:t2","duration_ms":428000,
				 "artists":[{"id":"a1","name":"Daft Punk"}],"album":{"id":"al2","name":"Homework"}}
			]}}`)
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		tracks, err := srv.SearchTracks(ctx, "A1", "daft punk", 5)
		if err != nil {
			t.Fatalf("expected search to succeed, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].Name != "One More Time" || tracks[0].URI != "spotify:track:t1" {
			t.Errorf("unexpected first track: %+v", tracks[0])
		}
		if tracks[1].Artists[0].Name != "Daft Punk" {
			t.Errorf("unexpected artist: %+v", tracks[1].Artists)
		}
	})

	t.Run("Empty Query", func(t *testing.T) {
		var requests atomic.Int64
		srv := newTestService(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		if _, err := srv.SearchTracks(ctx, "A1", "   ", 5); !errors.Is(err, shared.ErrBadRequest) {
			t.Errorf("expected ErrBadRequest, got %v", err)
		}
		if requests.Load() != 0 {
			t.Error("expected no upstream call for an empty query")
		}
	})

	t.Run("Limit Fallback", func(t *testing.T) {
		srv := newTestService(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "5" {
				t.Errorf("expected limit 5, got %s", got)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"tracks":{"items":[]}}`)
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		if _, err := srv.SearchTracks(ctx, "A1", "anything", 0); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestCreatePlaylist(t *testing.T) {
	ctx := t.Context()

	t.Run("Validation", func(t *testing.T) {
		var requests atomic.Int64
		srv := newTestService(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		t.Run("Empty Name", func(t *testing.T) {
			_, err := srv.CreatePlaylist(ctx, "A1", "  ", []string{"spotify:track:t1"})
			if !errors.Is(err, shared.ErrBadRequest) {
				t.Errorf("expected ErrBadRequest, got %v", err)
			}
		})

		t.Run("Empty Tracks", func(t *testing.T) {
			_, err := srv.CreatePlaylist(ctx, "A1", "Mix", nil)
			if !errors.Is(err, shared.ErrBadRequest) {
				t.Errorf("expected ErrBadRequest, got %v", err)
			}
		})

		if requests.Load() != 0 {
			t.Error("expected no upstream call for invalid input")
		}
	})

	t.Run("Success", func(t *testing.T) {
		srv := newTestService(t)
		var order []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, r.Method+" "+r.URL.Path)
			w.Header().Set("Content-Type", "application/json")

			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/me":
				fmt.Fprint(w, `{"id":"user1"}`)
			case r.Method == http.MethodPost && r.URL.Path == "/users/user1/playlists":
				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("failed to decode create body: %v", err)
				}
				if body["name"] != "Road Trip" || body["public"] != true {
					t.Errorf("unexpected create body: %v", body)
				}
				fmt.Fprint(w, `{"id":"pl1","external_urls":{"spotify":"https://open.spotify.com/playlist/pl1"}}`)
			case r.Method == http.MethodPost && r.URL.Path == "/playlists/pl1/tracks":
				var body struct {
					URIs []string `json:"uris"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("failed to decode attach body: %v", err)
				}
				if len(body.URIs) != 2 {
					t.Errorf("expected 2 uris, got %v", body.URIs)
				}
				fmt.Fprint(w, `{"snapshot_id":"snap"}`)
			default:
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		playlist, err := srv.CreatePlaylist(ctx, "A1", "Road Trip", []string{"spotify:track:t1", "spotify:track:t2"})
		if err != nil {
			t.Fatalf("expected creation to succeed, got %v", err)
		}
		if playlist.ID != "pl1" {
			t.Errorf("expected playlist id pl1, got %s", playlist.ID)
		}
		if playlist.ExternalURL != "https://open.spotify.com/playlist/pl1" {
			t.Errorf("unexpected external url: %s", playlist.ExternalURL)
		}
		if len(order) != 3 || order[0] != "GET /me" {
			t.Errorf("unexpected call order: %v", order)
		}
	})

	t.Run("Attach Failure After Create", func(t *testing.T) {
		srv := newTestService(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/me":
				fmt.Fprint(w, `{"id":"user1"}`)
			case r.URL.Path == "/users/user1/playlists":
				fmt.Fprint(w, `{"id":"pl1","external_urls":{"spotify":"https://open.spotify.com/playlist/pl1"}}`)
			default:
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"error":{"status":403,"message":"Insufficient client scope"}}`)
			}
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		_, err := srv.CreatePlaylist(ctx, "A1", "Road Trip", []string{"spotify:track:t1"})
		if err == nil {
			t.Fatal("expected attach failure to surface")
		}
		if !strings.Contains(err.Error(), "pl1") {
			t.Errorf("expected error to name the created playlist, got %v", err)
		}

		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
		if upstream.Status != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", upstream.Status)
		}
		if !strings.Contains(string(upstream.Body), "Insufficient client scope") {
			t.Errorf("expected provider payload attached, got %s", upstream.Body)
		}
	})
}

func TestUploadPlaylistImage(t *testing.T) {
	ctx := t.Context()

	t.Run("Validation", func(t *testing.T) {
		var requests atomic.Int64
		srv := newTestService(t)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		t.Run("Empty Image", func(t *testing.T) {
			err := srv.UploadPlaylistImage(ctx, "A1", "pl1", nil)
			if !errors.Is(err, shared.ErrBadRequest) {
				t.Errorf("expected ErrBadRequest, got %v", err)
			}
		})

		t.Run("Too Large", func(t *testing.T) {
			err := srv.UploadPlaylistImage(ctx, "A1", "pl1", jpegBytes(MaxCoverImageBytes+1))
			if !errors.Is(err, shared.ErrPayloadTooLarge) {
				t.Errorf("expected ErrPayloadTooLarge, got %v", err)
			}
		})

		t.Run("Not A JPEG", func(t *testing.T) {
			png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
			err := srv.UploadPlaylistImage(ctx, "A1", "pl1", png)
			if !errors.Is(err, shared.ErrUnsupportedMediaType) {
				t.Errorf("expected ErrUnsupportedMediaType, got %v", err)
			}
		})

		if requests.Load() != 0 {
			t.Error("expected no upstream call for invalid images")
		}
	})

	t.Run("Success", func(t *testing.T) {
		srv := newTestService(t)
		image := jpegBytes(1024)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut || r.URL.Path != "/playlists/pl1/images" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			if got := r.Header.Get("Content-Type"); got != "image/jpeg" {
				t.Errorf("expected Content-Type image/jpeg, got %s", got)
			}

			body, _ := io.ReadAll(r.Body)
			decoded, err := base64.StdEncoding.DecodeString(string(body))
			if err != nil {
				t.Errorf("expected base64 body: %v", err)
			}
			if len(decoded) != len(image) {
				t.Errorf("expected %d decoded bytes, got %d", len(image), len(decoded))
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(server.Close)
		srv.baseURL = server.URL

		if err := srv.UploadPlaylistImage(ctx, "A1", "pl1", image); err != nil {
			t.Fatalf("expected upload to succeed, got %v", err)
		}
	})
}

func TestDoRequest(t *testing.T) {
	t.Run("Captures Provider Error Body", func(t *testing.T) {
		srv := newTestService(t)
		body := `{"error":{"status":404,"message":"Not found."}}`
		srv.httpClient = &http.Client{
			Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusNotFound,
					Body:       io.NopCloser(strings.NewReader(body)),
					Header:     http.Header{"Content-Type": []string{"application/json"}},
				}, nil
			}),
		}

		err := srv.doRequest(t.Context(), http.MethodGet, "/me", "A1", "", nil, nil)

		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
		if upstream.Status != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", upstream.Status)
		}
		if string(upstream.Body) != body {
			t.Errorf("expected provider body attached, got %s", upstream.Body)
		}
		if !errors.Is(err, shared.ErrUpstream) {
			t.Error("expected UpstreamError to unwrap to ErrUpstream")
		}
	})
}
