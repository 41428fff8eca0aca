package tasks

import (
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Run phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Run phase enumeration
type Phase int

const (
	CheckConnection Phase = iota
	Enrich
	Push
	FetchDelta
	Merge
	Done
)

func (p Phase) String() string {
	switch p {
	case CheckConnection:
		return "check_connection"
	case Enrich:
		return "enrich"
	case Push:
		return "push"
	case FetchDelta:
		return "fetch_delta"
	case Merge:
		return "merge"
	case Done:
		return "done"
	default:
		return ""
	}
}

func checkConnectionUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: CheckConnection, Step: 1, Total: 1, Message: "Checking connection..."}
}

func offlineUpdate(err error) ProgressUpdate {
	return ProgressUpdate{Phase: CheckConnection, Step: 1, Total: 1, Message: fmt.Sprintf("Offline: %v", err)}
}

func enrichUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Enrich,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Resolved %d temporary movie(s)", count),
	}
}

func pushUpdate(step, total int, e *models.QueueEntry) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s", step, total, e.Action)
	if e.MovieRef != "" {
		msg += " " + e.MovieRef
	}
	return ProgressUpdate{Phase: Push, Step: step, Total: total, Message: msg, Data: e}
}

func haltUpdate(step, total int, e *models.QueueEntry, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Push,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s will be retried: %v", step, total, e.Action, err),
		Data:    e,
	}
}

func fetchDeltaUpdate(since models.Timestamp) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchDelta,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching changes since %s...", since.Format("2006-01-02 15:04:05")),
	}
}

func mergeUpdate(movies int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Merge,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Merging %d movie(s)...", movies),
	}
}

func doneUpdate(result *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: result.Summary(),
		Data:    result,
	}
}
