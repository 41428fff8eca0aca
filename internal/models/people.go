package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/reelsync/internal/shared"
)

// Defaults applied to people and lists created without explicit styling.
const (
	DefaultColor = "#0a84ff"
	DefaultIcon  = "list"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Person is someone who recommends movies, keyed by name.
type Person struct {
	Name         string
	IsTrusted    bool
	IsDefault    bool
	Color        string
	Emoji        string
	LastModified Timestamp
}

func (p *Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: person name is required", shared.ErrValidation)
	}
	return ValidateColor(p.Color)
}

// ValidateColor accepts an empty string (meaning the default) or a #rgb/#rrggbb color.
func ValidateColor(c string) error {
	if c != "" && !hexColor.MatchString(c) {
		return fmt.Errorf("%w: color %q", shared.ErrValidation, c)
	}
	return nil
}

// CustomList groups movies with the [Custom] status.
type CustomList struct {
	ID           string
	Name         string
	Color        string
	Icon         string
	Position     int
	CreatedAt    Timestamp
	LastModified Timestamp
}

func (l *CustomList) Validate() error {
	switch {
	case l.ID == "":
		return fmt.Errorf("%w: list id is required", shared.ErrValidation)
	case strings.TrimSpace(l.Name) == "":
		return fmt.Errorf("%w: list name is required", shared.ErrValidation)
	case l.Position < 0:
		return fmt.Errorf("%w: list position %d", shared.ErrValidation, l.Position)
	}
	return ValidateColor(l.Color)
}

// WithDefaults fills unset styling fields.
func (p Person) WithDefaults() Person {
	if p.Color == "" {
		p.Color = DefaultColor
	}
	return p
}

// WithDefaults fills unset styling fields.
func (l CustomList) WithDefaults() CustomList {
	if l.Color == "" {
		l.Color = DefaultColor
	}
	if l.Icon == "" {
		l.Icon = DefaultIcon
	}
	return l
}
