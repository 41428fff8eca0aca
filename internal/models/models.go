package models

import (
	"context"
	"math"
	"time"
)

// Validator is implemented by every entity the store persists.
type Validator interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for keyed data access operations.
// Implementations handle database interactions for specific model types.
type Repository[K comparable, T Validator] interface {
	Get(ctx context.Context, key K) (T, error)                      // Get retrieves a model by its key
	Upsert(ctx context.Context, model T) error                      // Upsert inserts or replaces a model
	Delete(ctx context.Context, key K) error                        // Delete removes a model by its key
	List(ctx context.Context, criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Timestamp is a point in time expressed in Unix milliseconds.
type Timestamp int64

// FromTime converts t to a [Timestamp].
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// FromSeconds converts fractional Unix seconds, as used on the wire, to a [Timestamp].
func FromSeconds(s float64) Timestamp {
	return Timestamp(math.Round(s * 1000))
}

// Seconds returns ts as fractional Unix seconds.
func (ts Timestamp) Seconds() float64 {
	return float64(ts) / 1000
}

// Time returns ts as a UTC [time.Time].
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

// IsZero reports whether ts was never set.
func (ts Timestamp) IsZero() bool {
	return ts == 0
}

func (ts Timestamp) String() string {
	if ts.IsZero() {
		return "never"
	}
	return ts.Time().Format(time.RFC3339)
}

// Newer reports whether ts is strictly later than other.
func (ts Timestamp) Newer(other Timestamp) bool {
	return ts > other
}

// Format renders ts with layout, or "-" when unset.
func (ts Timestamp) Format(layout string) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Time().Format(layout)
}

