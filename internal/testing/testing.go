// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nmoreira/spotiproxy/internal/services"
	"golang.org/x/oauth2"
)

// JPEGBytes returns a buffer of the given size starting with a valid JPEG
// signature, enough for content sniffing without a real image.
func JPEGBytes(size int) []byte {
	buf := make([]byte, size)
	copy(buf, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return buf
}

// MockService is a configurable test double for [services.Service].
//
// Unset function fields return zero values. Calls counts every forwarded
// operation, letting tests assert that no upstream call was made.
type MockService struct {
	mu    sync.Mutex
	calls int

	AuthURLFunc      func(state string) string
	ExchangeFunc     func(ctx context.Context, code string) (*oauth2.Token, error)
	RefreshFunc      func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	ProfileFunc      func(ctx context.Context, token string) (json.RawMessage, error)
	SearchTracksFunc func(ctx context.Context, token, query string, limit int) ([]services.SpotifyTrack, error)
	CreateFunc       func(ctx context.Context, token, name string, trackURIs []string) (*services.CreatedPlaylist, error)
	UploadImageFunc  func(ctx context.Context, token, playlistID string, image []byte) error
}

var _ services.Service = (*MockService)(nil)

func (m *MockService) Name() string { return "mock" }

// Calls returns how many provider operations have been invoked.
func (m *MockService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockService) record() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *MockService) AuthURL(state string) string {
	if m.AuthURLFunc != nil {
		return m.AuthURLFunc(state)
	}
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	m.record()
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	return &oauth2.Token{}, nil
}

func (m *MockService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.record()
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return &oauth2.Token{}, nil
}

func (m *MockService) Profile(ctx context.Context, token string) (json.RawMessage, error) {
	m.record()
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, token)
	}
	return json.RawMessage(`{}`), nil
}

func (m *MockService) SearchTracks(ctx context.Context, token, query string, limit int) ([]services.SpotifyTrack, error) {
	m.record()
	if m.SearchTracksFunc != nil {
		return m.SearchTracksFunc(ctx, token, query, limit)
	}
	return []services.SpotifyTrack{}, nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, token, name string, trackURIs []string) (*services.CreatedPlaylist, error) {
	m.record()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token, name, trackURIs)
	}
	return &services.CreatedPlaylist{}, nil
}

func (m *MockService) UploadPlaylistImage(ctx context.Context, token, playlistID string, image []byte) error {
	m.record()
	if m.UploadImageFunc != nil {
		return m.UploadImageFunc(ctx, token, playlistID, image)
	}
	return nil
}
