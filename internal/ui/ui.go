package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/store"
	"github.com/desertthunder/reelsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	MovieListView ViewState = iota
	QueueView
)

const timeLayout = "2006-01-02 15:04:05"

// Syncer is the part of [tasks.Processor] the monitor drives.
type Syncer interface {
	RunOnce(ctx context.Context) (*tasks.RunResult, error)
	ForceSync(ctx context.Context) (*tasks.RunResult, error)
	Status(ctx context.Context) (models.SyncStatus, error)
	Subscribe(ctx context.Context) (<-chan models.SyncStatus, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	store     *store.Store
	syncer    Syncer
	statuses  <-chan models.SyncStatus
	changes   <-chan models.Change
	progress  <-chan tasks.ProgressUpdate
	status    models.SyncStatus
	update    tasks.ProgressUpdate
	syncing   bool
	result    *tasks.RunResult
	movieList list.Model
	queueList list.Model
	width     int
	height    int
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a monitor over s and syncer. progress may be nil; when set it should be the
// channel the processor was built with.
func NewModel(ctx context.Context, s *store.Store, syncer Syncer, progress <-chan tasks.ProgressUpdate) *Model {
	m := &Model{
		ctx:      ctx,
		view:     MovieListView,
		store:    s,
		syncer:   syncer,
		progress: progress,
		help:     help.New(),
		keys:     newKeyMap(),
	}
	m.movieList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.movieList.Title = "Movies"
	m.queueList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.queueList.Title = "Mutation Queue"
	return m
}

// Init subscribes to status and store changes and loads the first snapshot.
func (m *Model) Init() tea.Cmd {
	var err error
	if m.statuses, err = m.syncer.Subscribe(m.ctx); err != nil {
		m.err = err
	}
	if m.changes, err = m.store.Subscribe(m.ctx); err != nil {
		m.err = err
	}
	if status, err := m.syncer.Status(m.ctx); err == nil {
		m.status = status
	}

	return tea.Batch(
		m.loadMovies(),
		m.loadQueue(),
		m.waitForStatus(),
		m.waitForChange(),
		m.waitForProgress(),
	)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.movieList.SetSize(msg.Width-4, msg.Height-8)
		m.queueList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgMoviesLoaded:
		data := msg.data.(moviesLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.movies))
		for i, r := range data.movies {
			items[i] = movieItem{record: r}
		}
		return m, m.movieList.SetItems(items)

	case MsgQueueLoaded:
		data := msg.data.(queueLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.entries))
		for i, e := range data.entries {
			items[i] = entryItem{entry: e}
		}
		return m, m.queueList.SetItems(items)

	case MsgStatusChanged:
		m.status = msg.data.(models.SyncStatus)
		return m, m.waitForStatus()

	case MsgStoreChanged:
		return m, tea.Batch(m.loadMovies(), m.loadQueue(), m.waitForChange())

	case MsgProgressUpdate:
		m.update = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.syncing = false
		m.result = data.result
		m.err = data.err
		if data.result != nil {
			m.status = data.result.Status
		}
		return m, tea.Batch(m.loadMovies(), m.loadQueue())
	}
	return m, nil
}

// View renders the status bar, the current list and help.
func (m *Model) View() string {
	var body string
	switch m.view {
	case QueueView:
		body = m.queueList.View()
	default:
		body = m.movieList.View()
	}

	helpKeys := []key.Binding{m.keys.tab, m.keys.sync, m.keys.force, m.keys.refresh, m.keys.quit}
	if m.view == QueueView {
		helpKeys = append([]key.Binding{m.keys.retry}, helpKeys...)
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", m.renderStatus(), m.renderActivity(), body, m.help.ShortHelpView(helpKeys))
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.currentList().FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.tab):
		if m.view == MovieListView {
			m.view = QueueView
		} else {
			m.view = MovieListView
		}
		return m, nil
	case key.Matches(msg, m.keys.sync):
		return m, m.startSync(false)
	case key.Matches(msg, m.keys.force):
		return m, m.startSync(true)
	case key.Matches(msg, m.keys.refresh):
		return m, tea.Batch(m.loadMovies(), m.loadQueue())
	case key.Matches(msg, m.keys.retry) && m.view == QueueView:
		if selected, ok := m.queueList.SelectedItem().(entryItem); ok && selected.entry.State == models.EntryFailed {
			return m, m.retryEntry(selected.entry.Seq)
		}
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) currentList() *list.Model {
	if m.view == QueueView {
		return &m.queueList
	}
	return &m.movieList
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case MovieListView:
		m.movieList, cmd = m.movieList.Update(msg)
	case QueueView:
		m.queueList, cmd = m.queueList.Update(msg)
	}
	return m, cmd
}

func (m *Model) loadMovies() tea.Cmd {
	return func() tea.Msg {
		movies, err := m.store.Movies(m.ctx, store.MovieFilter{})
		return moviesLoadedMsg(movies, err)
	}
}

func (m *Model) loadQueue() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.store.Queue().List(m.ctx, "")
		return queueLoadedMsg(entries, err)
	}
}

func (m *Model) retryEntry(seq int64) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.Queue().Retry(m.ctx, seq); err != nil {
			return queueLoadedMsg(nil, err)
		}
		entries, err := m.store.Queue().List(m.ctx, "")
		return queueLoadedMsg(entries, err)
	}
}

// startSync runs the processor off the UI goroutine. A second press while a run is in flight is
// ignored.
func (m *Model) startSync(force bool) tea.Cmd {
	if m.syncing {
		return nil
	}
	m.syncing = true
	m.err = nil
	return func() tea.Msg {
		run := m.syncer.RunOnce
		if force {
			run = m.syncer.ForceSync
		}
		result, err := run(m.ctx)
		return syncCompleteMsg(result, err)
	}
}

func (m *Model) waitForStatus() tea.Cmd {
	if m.statuses == nil {
		return nil
	}
	return func() tea.Msg {
		status, ok := <-m.statuses
		if !ok {
			return closedMsg()
		}
		return statusChangedMsg(status)
	}
}

func (m *Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		change, ok := <-m.changes
		if !ok {
			return closedMsg()
		}
		return storeChangedMsg(change)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	if m.progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-m.progress
		if !ok {
			return closedMsg()
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderStatus() string {
	s := m.status
	state := s.State
	if state == "" {
		state = models.StateSynced
	}
	badge := styles.State(state).Render(string(state))
	if s.IsProcessing || m.syncing {
		badge += styles.warn.Render(" (syncing)")
	}

	line := fmt.Sprintf("%s  pending %d  failed %d  last sync %s",
		badge, s.PendingCount, s.FailedCount, s.LastSync.Format(timeLayout))
	return styles.title.Render("reelsync") + "\n" + line
}

func (m *Model) renderActivity() string {
	switch {
	case m.err != nil:
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	case m.syncing && m.update.Message != "":
		if m.update.Total > 1 {
			return fmt.Sprintf("[%d/%d] %s", m.update.Step, m.update.Total, m.update.Message)
		}
		return m.update.Message
	case m.result != nil:
		return styles.ok.Render("Last run: " + m.result.Summary())
	case m.status.LastError != "":
		return styles.warn.Render(m.status.LastError)
	}
	return styles.help.Render("Press s to sync")
}
