// Package repositories implements SQLite persistence for all domain entities and the mutation queue.
//
// Every repository is bound to a [DBTX], which is satisfied by both *sql.DB and *sql.Tx. The store
// builds a fresh set of repositories per transaction so that a multi-entity write commits or rolls
// back as one unit.
//
// Key Implementations:
//   - [MovieRepository] : Movies keyed by a tagged models.MovieID
//   - [RecommendationRepository] : Votes, unique per (movie, person)
//   - [WatchRepository] and [StatusRepository] : One-to-one movie children
//   - [PersonRepository] and [ListRepository] : People and custom lists
//   - [QueueRepository] : The mutation queue table, drained in seq order
//   - [MetadataRepository] : Sync metadata key/value pairs such as last_sync
//   - [SyncLogRepository] : Rejected, exhausted and conflicting actions
//
// Missing rows are reported as errors wrapping shared.ErrNotFound.
package repositories
