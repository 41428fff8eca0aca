// Package services talks to the sync server over HTTP and WebSocket.
//
// # Transport
//
// [APIService] performs raw requests against the API root. Requests carry an optional bearer token
// through an [oauth2.Transport], are paced by a token bucket and bounded by a per-request deadline.
//
// # Sync
//
// [SyncService] implements [Remote]:
//   - Ping: GET /health
//   - Push: POST /sync with {action, data, timestamp}
//   - FetchDelta: GET /sync?since=<seconds>
//
// The server speaks fractional Unix seconds. Conversion to millisecond [models.Timestamp] values
// happens in wire.go and nowhere else.
//
// # Error Handling
//
// Failed calls return a [RequestError], which classifies itself under [errors.Is]:
//   - [shared.ErrTransient] : no response, timeout, 5xx, 408, 429, 401, 403
//   - [shared.ErrPermanent] : any other status, or a 2xx body with success=false
//   - [shared.ErrTimeout] : deadline exceeded
//
// A conflict reply is not an error. [PushResult.Conflict] is set and the server's record is returned.
//
// # Enrichment
//
// [MetadataService] implements [Enricher] through the server's TMDB proxy: search by title and
// year, then read the IMDb id from the details of the first movie hit.
//
// # Change Feed
//
// [ChangeFeed] holds a WebSocket to /ws/sync open and reconnects with jittered backoff. Messages
// only signal that a pull is worthwhile; records always come from FetchDelta.
package services
