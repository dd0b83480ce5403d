// Package repositories provides the SQLite persistence layer for the track cache.
//
// Search results are cached opportunistically so repeated lookups and future
// features (matching, offline inspection) do not need to re-query Spotify.
// The cache is plain read-through storage: losing it costs nothing but a
// refetch, and session records are deliberately NOT persisted here.
package repositories
