package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/reelsync/internal/merge"
	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/notify"
	"github.com/desertthunder/reelsync/internal/queue"
	"github.com/desertthunder/reelsync/internal/services"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/store"
)

const (
	defaultInterval = 30 * time.Second
	runKey          = "run"
)

// RunResult contains everything one processor run did.
type RunResult struct {
	Offline   bool
	Forced    bool
	Pushed    int   // entries accepted by the server
	Rejected  int   // entries the server will never accept, logged and removed
	Conflicts int   // entries answered with a newer server record
	Halted    bool  // a transient failure stopped the drain
	Cause     error // why the run stopped early: offline or halted
	Exhausted int   // entries parked as failed during this run
	Remapped  []*merge.RemapResult
	Merge     *merge.Result
	Status    models.SyncStatus
	Started   time.Time
	Duration  time.Duration
}

// Summary renders the result on one line.
func (r *RunResult) Summary() string {
	if r.Offline {
		return "offline: queue left untouched"
	}
	parts := []string{fmt.Sprintf("pushed %d", r.Pushed)}
	if r.Rejected > 0 {
		parts = append(parts, fmt.Sprintf("rejected %d", r.Rejected))
	}
	if r.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("conflicts %d", r.Conflicts))
	}
	if r.Halted {
		parts = append(parts, "halted on retry")
	}
	if len(r.Remapped) > 0 {
		parts = append(parts, fmt.Sprintf("remapped %d", len(r.Remapped)))
	}
	if r.Merge != nil {
		parts = append(parts, fmt.Sprintf("merged %d (kept %d local)", r.Merge.Applied, r.Merge.Skipped))
		if r.Merge.Dropped > 0 {
			parts = append(parts, fmt.Sprintf("dropped %d invalid", r.Merge.Dropped))
		}
	}
	parts = append(parts, fmt.Sprintf("%d pending", r.Status.PendingCount))
	return strings.Join(parts, ", ")
}

// Processor drains the mutation queue and pulls remote deltas. Only one run is active at a time.
type Processor struct {
	store    *store.Store
	queue    *queue.Queue
	remote   services.Remote
	resolver *merge.Resolver
	enricher services.Enricher
	logger   *log.Logger
	interval time.Duration
	progress chan<- ProgressUpdate

	group    singleflight.Group
	running  atomic.Bool
	trigger  chan struct{}
	statuses *notify.Hub[models.SyncStatus]

	mu        sync.Mutex
	lastState models.SyncState
	lastError string
}

// Option configures a [Processor].
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = shared.WithLogger(l, "component", "processor") }
}

// WithInterval sets how often [Processor.Run] syncs without a trigger.
func WithInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithEnricher resolves temporary movies at the start of every run.
func WithEnricher(e services.Enricher) Option {
	return func(p *Processor) { p.enricher = e }
}

// WithProgress sends [ProgressUpdate] values to ch. Updates are dropped when ch is full.
func WithProgress(ch chan<- ProgressUpdate) Option {
	return func(p *Processor) { p.progress = ch }
}

// NewProcessor creates a Processor over s, pushing to remote and merging through resolver.
func NewProcessor(s *store.Store, remote services.Remote, resolver *merge.Resolver, opts ...Option) *Processor {
	p := &Processor{
		store:     s,
		queue:     s.Queue(),
		remote:    remote,
		resolver:  resolver,
		logger:    log.New(io.Discard),
		interval:  defaultInterval,
		trigger:   make(chan struct{}, 1),
		statuses:  notify.NewHub[models.SyncStatus](notify.DefaultBuffer),
		lastState: models.StateSynced,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// sendProgress sends a progress update through the channel without blocking.
func (p *Processor) sendProgress(update ProgressUpdate) {
	if p.progress == nil {
		return
	}
	select {
	case p.progress <- update:
	default:
	}
}

// RunOnce performs one run, honoring queue backoff.
func (p *Processor) RunOnce(ctx context.Context) (*RunResult, error) {
	return p.do(ctx, false)
}

// ForceSync performs one run immediately, ignoring the backoff of the queue head.
func (p *Processor) ForceSync(ctx context.Context) (*RunResult, error) {
	return p.do(ctx, true)
}

// IsRunning reports whether a run is in flight.
func (p *Processor) IsRunning() bool {
	return p.running.Load()
}

// do joins the in-flight run or starts one. Cancelling ctx stops the wait, not the run.
func (p *Processor) do(ctx context.Context, force bool) (*RunResult, error) {
	ch := p.group.DoChan(runKey, func() (any, error) {
		return p.execute(context.WithoutCancel(ctx), force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(*RunResult)
		if res.Shared {
			p.logger.Debug("joined in-flight run")
		}
		return result, res.Err
	}
}

func (p *Processor) execute(ctx context.Context, force bool) (*RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, shared.ErrSyncInProgress
	}
	defer p.running.Store(false)

	result := &RunResult{Forced: force, Started: time.Now()}
	p.publish(ctx, "", nil)

	runErr := p.sync(ctx, result)
	result.Duration = time.Since(result.Started)
	p.running.Store(false)

	state := models.StateSynced
	switch {
	case result.Offline:
		state = models.StateOffline
	case result.Conflicts > 0:
		state = models.StateConflict
	case runErr != nil:
		state = models.StatePending
	}
	reported := runErr
	if reported == nil {
		reported = result.Cause
	}
	result.Status = p.publish(ctx, state, reported)

	p.sendProgress(doneUpdate(result))
	if runErr != nil {
		p.logger.Error("sync run failed", "error", runErr, "duration", result.Duration)
	} else {
		p.logger.Info("sync run finished", "summary", result.Summary(), "duration", result.Duration)
	}
	return result, runErr
}

// sync is the body of a run.
func (p *Processor) sync(ctx context.Context, result *RunResult) error {
	p.sendProgress(checkConnectionUpdate())
	if err := p.remote.Ping(ctx); err != nil {
		p.logger.Warn("remote unreachable", "error", err)
		p.sendProgress(offlineUpdate(err))
		result.Offline = true
		result.Cause = err
		return nil
	}

	if p.enricher != nil {
		remapped, err := p.resolver.EnrichAll(ctx, p.enricher)
		result.Remapped = remapped
		if err != nil {
			p.logger.Warn("enrichment stopped", "error", err)
		}
		if len(remapped) > 0 {
			p.sendProgress(enrichUpdate(len(remapped)))
		}
	}

	if err := p.drain(ctx, result); err != nil {
		return err
	}
	return p.pull(ctx, result)
}

// drain pushes queue entries in order until the queue is empty, the head is backing off, or a
// transient failure halts it.
func (p *Processor) drain(ctx context.Context, result *RunResult) error {
	counts, err := p.queue.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queue: %w", err)
	}
	total := counts[models.EntryPending]
	step := 0

	for {
		e, err := p.queue.DequeueNextPending(ctx, result.Forced)
		if err != nil {
			return fmt.Errorf("failed to read queue head: %w", err)
		}
		if e == nil {
			return nil
		}
		step++
		total = max(total, step)
		p.sendProgress(pushUpdate(step, total, e))

		if err := p.queue.MarkProcessing(ctx, e.Seq); err != nil {
			return err
		}

		reply, pushErr := p.remote.Push(ctx, e)
		switch {
		case pushErr == nil && reply != nil && reply.Conflict:
			if err := p.resolveConflict(ctx, e, reply); err != nil {
				return p.release(ctx, e, err)
			}
			result.Conflicts++

		case pushErr == nil:
			resend, err := p.queue.Ack(ctx, e)
			if err != nil {
				return p.release(ctx, e, err)
			}
			if resend {
				continue
			}
			result.Pushed++

		case permanent(pushErr):
			p.logger.Warn("server rejected entry", "seq", e.Seq, "action", e.Action, "error", pushErr)
			if err := p.queue.Reject(ctx, e.Seq, pushErr); err != nil {
				return p.release(ctx, e, err)
			}
			result.Rejected++

		default:
			exhausted, err := p.queue.MarkFailed(ctx, e.Seq, pushErr)
			if err != nil {
				return p.release(ctx, e, err)
			}
			if exhausted {
				result.Exhausted++
			}
			result.Halted = true
			result.Cause = pushErr
			p.sendProgress(haltUpdate(step, total, e, pushErr))
			p.logger.Warn("drain halted", "seq", e.Seq, "action", e.Action, "exhausted", exhausted, "error", pushErr)
			return nil
		}
	}
}

// release hands e back to the queue after its outcome could not be recorded, so the head is not
// stuck in processing until the next restart.
func (p *Processor) release(ctx context.Context, e *models.QueueEntry, cause error) error {
	if err := p.queue.Release(ctx, e.Seq); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to release entry %d: %w", e.Seq, err))
	}
	return cause
}

// resolveConflict merges the server's record and consumes the entry.
func (p *Processor) resolveConflict(ctx context.Context, e *models.QueueEntry, reply *services.PushResult) error {
	if reply.ServerState != nil {
		applied, err := p.resolver.ApplyServerState(ctx, reply.ServerState)
		if err != nil {
			if _, markErr := p.queue.MarkFailed(ctx, e.Seq, err); markErr != nil {
				return errors.Join(err, markErr)
			}
			return err
		}
		p.logger.Info("resolved conflict", "seq", e.Seq, "movie", e.MovieRef, "server_applied", applied)
	}
	msg := reply.Message
	if msg == "" {
		msg = "server kept a newer version"
	}
	return p.queue.Resolve(ctx, e.Seq, fmt.Errorf("%w: %s", shared.ErrConflict, msg))
}

// pull fetches and merges the delta since last_sync.
func (p *Processor) pull(ctx context.Context, result *RunResult) error {
	since, err := p.store.LastSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last sync: %w", err)
	}

	p.sendProgress(fetchDeltaUpdate(since))
	delta, err := p.remote.FetchDelta(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch delta: %w", err)
	}

	p.sendProgress(mergeUpdate(len(delta.Movies)))
	merged, err := p.resolver.Apply(ctx, delta)
	if err != nil {
		return fmt.Errorf("failed to merge delta: %w", err)
	}
	result.Merge = merged
	return nil
}

// permanent reports whether err means the server will never accept the entry. Anything
// unclassified is retried so that nothing is dropped on an unexpected error.
func permanent(err error) bool {
	return errors.Is(err, shared.ErrPermanent) || errors.Is(err, shared.ErrValidation)
}

func (p *Processor) setError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.lastError = ""
		return
	}
	p.lastError = err.Error()
}

// publish builds the current status and sends it to subscribers. An empty state marks the start of
// a run and keeps the previous outcome.
func (p *Processor) publish(ctx context.Context, state models.SyncState, cause error) models.SyncStatus {
	if state != "" {
		p.mu.Lock()
		p.lastState = state
		p.mu.Unlock()
		p.setError(cause)
	}

	status, err := p.Status(ctx)
	if err != nil {
		p.logger.Error("failed to build status", "error", err)
	}
	p.statuses.Publish(status)
	return status
}

// Status reports the processor state together with fresh queue counts.
//
// The state is offline when the last run could not reach the server, conflict when the last run
// resolved conflicts or entries are parked as failed, pending when work is queued or the last run
// failed before finishing, and synced otherwise.
func (p *Processor) Status(ctx context.Context) (models.SyncStatus, error) {
	p.mu.Lock()
	state, lastErr := p.lastState, p.lastError
	p.mu.Unlock()

	status := models.SyncStatus{
		IsProcessing: p.running.Load(),
		State:        state,
		LastError:    lastErr,
		At:           p.store.Now(),
	}

	counts, err := p.queue.Counts(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to count queue: %w", err)
	}
	status.PendingCount = counts[models.EntryPending] + counts[models.EntryProcessing]
	status.FailedCount = counts[models.EntryFailed]

	if status.LastSync, err = p.store.LastSync(ctx); err != nil {
		return status, fmt.Errorf("failed to read last sync: %w", err)
	}

	if status.FailedCount > 0 {
		failed, err := p.queue.List(ctx, models.EntryFailed)
		if err != nil {
			return status, fmt.Errorf("failed to list failed entries: %w", err)
		}
		for _, e := range failed {
			status.Failures = append(status.Failures, models.Failure{Seq: e.Seq, Action: e.Action, Message: e.LastError})
		}
	}

	if state != models.StateOffline {
		switch {
		case state == models.StateConflict || status.FailedCount > 0:
			status.State = models.StateConflict
		case status.PendingCount > 0 || state == models.StatePending:
			status.State = models.StatePending
		default:
			status.State = models.StateSynced
		}
	}
	return status, nil
}

// Subscribe delivers a [models.SyncStatus] at the start and end of every run until ctx is done.
func (p *Processor) Subscribe(ctx context.Context) (<-chan models.SyncStatus, error) {
	return p.statuses.Subscribe(ctx, nil)
}

// Trigger asks [Processor.Run] for a run as soon as possible. Triggers arriving during a wait
// collapse into one.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run syncs immediately, then every interval and on every trigger, until ctx is done. Failed runs
// are logged and retried on the next tick.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("scheduled run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.trigger:
		}
	}
}

// Follow triggers a run for every local change read from changes, until the channel closes or ctx
// is done. Remote changes are ignored since they come from a run.
func (p *Processor) Follow(ctx context.Context, changes <-chan models.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Origin == models.OriginLocal && c.Entity != models.EntityQueue {
				p.Trigger()
			}
		}
	}
}

// OnFeedEvent triggers a run for change feed notifications other than the connection greeting.
func (p *Processor) OnFeedEvent(evt services.FeedEvent) {
	if evt.Type == services.FeedConnected {
		return
	}
	p.logger.Debug("change feed event", "type", evt.Type, "movie", evt.IMDBID)
	p.Trigger()
}

// Close ends every status subscription.
func (p *Processor) Close() {
	p.statuses.Shutdown()
}
