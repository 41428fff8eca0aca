// Package models defines the domain entities, identifiers and persistence interfaces of the sync engine.
//
// The package contains three categories of types:
//
// 1. Entities owned by the local store
//   - [Movie] : A title keyed by a tagged [MovieID]
//   - [Recommendation] : One vote per (movie, person)
//   - [WatchHistory] : Watched timestamp and rating for a movie
//   - [Status] : Soft state of a movie (toWatch, watched, deleted, custom)
//   - [Person] : A recommender, keyed by name
//   - [CustomList] : A user defined list movies can be filed under
//
// 2. Mutation queue types
//   - [QueueEntry] : A durable write intent with lifecycle state and retry bookkeeping
//   - [ActionKind] and the payload structs carried by each entry
//
// 3. Sync types
//   - [Delta] : A remote batch of records changed since a timestamp
//   - [SyncStatus] : The aggregate status published after every processor run
//   - [Change] : A committed write, local or remote, that listeners should refresh on
//
// All timestamps are [Timestamp] values in Unix milliseconds. Wire formats using other units
// convert at the service boundary.
package models
