package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/reelsync/internal/models"
)

var (
	_ list.Item = movieItem{}
	_ list.Item = entryItem{}
)

// movieItem wraps [models.MovieRecord] to implement [list.Item].
type movieItem struct {
	record models.MovieRecord
}

func (i movieItem) FilterValue() string { return i.record.Movie.Title + " " + i.record.Movie.ID.Value }
func (i movieItem) Title() string {
	title := i.record.Movie.Title
	if title == "" {
		title = i.record.Movie.ID.Value
	}
	if i.record.Movie.Year > 0 {
		title = fmt.Sprintf("%s (%d)", title, i.record.Movie.Year)
	}
	return title
}
func (i movieItem) Description() string {
	desc := fmt.Sprintf("%s • %s • score %+d", i.record.Movie.ID, i.record.StateOrDefault(), i.record.Score())
	if len(i.record.Recommendations) > 0 {
		names := make([]string, 0, len(i.record.Recommendations))
		for _, r := range i.record.Recommendations {
			names = append(names, r.Person)
		}
		desc = fmt.Sprintf("%s • %s", desc, strings.Join(names, ", "))
	}
	if i.record.Watch != nil {
		desc = fmt.Sprintf("%s • %.1f/10", desc, i.record.Watch.Rating)
	}
	return desc
}

// entryItem wraps [models.QueueEntry] to implement [list.Item].
type entryItem struct {
	entry *models.QueueEntry
}

func (i entryItem) FilterValue() string { return string(i.entry.Action) + " " + i.entry.MovieRef }
func (i entryItem) Title() string {
	return fmt.Sprintf("#%d %s %s", i.entry.Seq, i.entry.Action, i.entry.MovieRef)
}
func (i entryItem) Description() string {
	desc := fmt.Sprintf("%s • retries %d", i.entry.State, i.entry.RetryCount)
	if i.entry.LastError != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.entry.LastError)
	}
	return desc
}
