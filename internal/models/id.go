package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/oklog/ulid/v2"
)

// IDKind tags a [MovieID] as server issued or locally minted.
type IDKind int

const (
	Canonical IDKind = iota
	Temporary
)

// TemporaryPrefix marks locally minted movie keys on the wire and in storage.
const TemporaryPrefix = "temp_"

func (k IDKind) String() string {
	switch k {
	case Canonical:
		return "canonical"
	case Temporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// ParseIDKind is the inverse of [IDKind.String].
func ParseIDKind(s string) (IDKind, error) {
	switch s {
	case "canonical":
		return Canonical, nil
	case "temporary":
		return Temporary, nil
	}
	return 0, fmt.Errorf("%w: id kind %q", shared.ErrInvalidInput, s)
}

// MovieID identifies a movie. Value is the full key as stored and sent to the server.
type MovieID struct {
	Kind  IDKind
	Value string
}

// CanonicalID wraps a server issued key such as an IMDb id.
func CanonicalID(v string) MovieID {
	return MovieID{Kind: Canonical, Value: v}
}

// NewTemporaryID mints a fresh, time ordered temporary key.
func NewTemporaryID() MovieID {
	return MovieID{Kind: Temporary, Value: TemporaryPrefix + strings.ToLower(ulid.Make().String())}
}

// TemporaryID wraps an already minted temporary key, adding the prefix when missing.
func TemporaryID(v string) MovieID {
	if !strings.HasPrefix(v, TemporaryPrefix) {
		v = TemporaryPrefix + v
	}
	return MovieID{Kind: Temporary, Value: v}
}

// ParseMovieID classifies a key received from outside the store (server payloads, CLI input).
// It is the only place the temporary prefix is inspected.
func ParseMovieID(s string) (MovieID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MovieID{}, fmt.Errorf("%w: empty movie id", shared.ErrValidation)
	}
	if strings.HasPrefix(s, TemporaryPrefix) {
		if len(s) == len(TemporaryPrefix) {
			return MovieID{}, fmt.Errorf("%w: temporary id %q has no suffix", shared.ErrValidation, s)
		}
		return MovieID{Kind: Temporary, Value: s}, nil
	}
	return CanonicalID(s), nil
}

func (id MovieID) String() string    { return id.Value }
func (id MovieID) IsZero() bool      { return id.Value == "" }
func (id MovieID) IsTemporary() bool { return id.Kind == Temporary }
func (id MovieID) IsCanonical() bool { return id.Kind == Canonical && id.Value != "" }
