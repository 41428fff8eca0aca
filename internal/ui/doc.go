// Package ui implements a terminal sync monitor using bubbletea's Elm architecture.
//
// The monitor has two views, toggled with tab:
//  1. [MovieListView] : the local movies with status, score and voters
//  2. [QueueView] : the mutation queue, head first, where enter retries a failed entry
//
// A status bar shows the aggregate sync state, the pending and failed counts and the last sync time.
// It follows the processor's status subscription and, while a run is in flight, its progress channel.
// Store change events reload both lists, so writes made from another terminal show up live.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
//
// Keyboard navigation uses vim-style bindings (j/k, tab, s, f, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
