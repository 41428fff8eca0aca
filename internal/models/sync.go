package models

// Delta is a batch of authoritative records the server changed since a timestamp.
type Delta struct {
	Movies          []MovieRecord
	People          []Person
	Lists           []CustomList
	DeletedMovieIDs []MovieID
	// Timestamp is the server clock at the time the delta was produced; it becomes last_sync.
	Timestamp Timestamp
	// Dropped holds rows that could not be decoded. They are left out of the delta.
	Dropped []error
}

// Empty reports whether the delta carries no records.
func (d *Delta) Empty() bool {
	return len(d.Movies) == 0 && len(d.People) == 0 && len(d.Lists) == 0 && len(d.DeletedMovieIDs) == 0
}

// SyncState is the aggregate state shown to the user.
type SyncState string

const (
	StateSynced   SyncState = "synced"
	StatePending  SyncState = "pending"
	StateConflict SyncState = "conflict"
	StateOffline  SyncState = "offline"
)

// Failure describes a queue entry that will not reach the server without user action.
type Failure struct {
	Seq     int64
	Action  ActionKind
	Message string
}

// SyncStatus is published to subscribers at the start and end of every processor run.
type SyncStatus struct {
	IsProcessing bool
	PendingCount int
	FailedCount  int
	LastSync     Timestamp
	State        SyncState
	LastError    string
	Failures     []Failure
	At           Timestamp
}

// Origin tells whether a [Change] came from a local write or a merged remote delta.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Entity names the kind of record a [Change] touched.
type Entity string

const (
	EntityMovie  Entity = "movie"
	EntityPerson Entity = "person"
	EntityList   Entity = "list"
	EntityQueue  Entity = "queue"
)

// Change is emitted after a write commits.
type Change struct {
	Origin Origin
	Entity Entity
	Key    string
	At     Timestamp
}

// LogKind classifies a [SyncLogEntry].
type LogKind string

const (
	LogRejected  LogKind = "rejected"
	LogExhausted LogKind = "exhausted"
	LogConflict  LogKind = "conflict"
)

// SyncLogEntry keeps rejected, exhausted and conflicting actions for inspection.
type SyncLogEntry struct {
	ID         int64
	Seq        int64
	Action     ActionKind
	MovieRef   string
	Kind       LogKind
	Message    string
	RecordedAt Timestamp
}

// Snapshot is a deterministic dump of every entity in the store.
type Snapshot struct {
	Movies []MovieRecord
	People []Person
	Lists  []CustomList
}
