package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgMoviesLoaded MsgKind = iota
	MsgQueueLoaded
	MsgStatusChanged
	MsgStoreChanged
	MsgProgressUpdate
	MsgSyncComplete
	MsgClosed
)

type moviesLoaded struct {
	movies []models.MovieRecord
	err    error
}

type queueLoaded struct {
	entries []*models.QueueEntry
	err     error
}

type syncComplete struct {
	result *tasks.RunResult
	err    error
}

// moviesLoadedMsg is the constructor for [MsgMoviesLoaded]
func moviesLoadedMsg(movies []models.MovieRecord, err error) Msg {
	return Msg{kind: MsgMoviesLoaded, data: moviesLoaded{movies, err}}
}

// queueLoadedMsg is the constructor for [MsgQueueLoaded]
func queueLoadedMsg(entries []*models.QueueEntry, err error) Msg {
	return Msg{kind: MsgQueueLoaded, data: queueLoaded{entries, err}}
}

// statusChangedMsg is the constructor for [MsgStatusChanged]
func statusChangedMsg(status models.SyncStatus) Msg {
	return Msg{kind: MsgStatusChanged, data: status}
}

// storeChangedMsg is the constructor for [MsgStoreChanged]
func storeChangedMsg(change models.Change) Msg {
	return Msg{kind: MsgStoreChanged, data: change}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncComplete{result, err}}
}

// closedMsg reports that a subscription channel was closed.
func closedMsg() Msg {
	return Msg{kind: MsgClosed}
}
