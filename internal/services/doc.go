// Package services implements the Spotify OAuth and Web API client used by the proxy.
//
// [SpotifyService] covers both halves of the external surface:
//
//   - Authorization: building the authorize URL, exchanging an authorization
//     code, and refreshing access tokens, all via [golang.org/x/oauth2].
//   - Forwarding: profile lookup, track search, playlist creation, and cover
//     image upload, each a direct call to one Web API endpoint using a bearer
//     token supplied by the caller.
//
// Caller-supplied input is validated before any request leaves the process.
// Upstream failures are wrapped in [UpstreamError] with Spotify's own error
// payload attached for diagnostics, and are never retried.
package services
