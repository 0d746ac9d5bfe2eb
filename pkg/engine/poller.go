package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// DefaultInterval is the period between timer-driven polls.
const DefaultInterval = 5 * time.Minute

// ErrPollInFlight is returned by RunOnce when another poll has not finished.
var ErrPollInFlight = errors.New("a usage poll is already in flight")

// Trigger names what caused a poll.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerTimer   Trigger = "timer"
	TriggerManual  Trigger = "manual"
	TriggerLogin   Trigger = "login"
	TriggerCLI     Trigger = "cli"
	TriggerFile    Trigger = "file"
)

// StateStore persists the reconciled state between runs.
type StateStore interface {
	Load() (*usage.State, error)
	Save(st *usage.State) error
}

// Sink receives every snapshot the poller produces.
type Sink interface {
	Record(ctx context.Context, pollID, trigger string, snap usage.Snapshot) error
}

// Update is delivered to subscribers after each poll or reload.
type Update struct {
	PollID    string          `json:"poll_id"`
	Trigger   Trigger         `json:"trigger"`
	Status    provider.Status `json:"status,omitempty"`
	Snapshot  usage.Snapshot  `json:"snapshot"`
	Err       error           `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  time.Duration   `json:"duration"`
}

// Poller runs the provider on a timer and on demand. At most one poll is in
// flight at any time; triggers arriving meanwhile are dropped, except those
// sent through TriggerAfter, which queue a single follow-up poll.
type Poller struct {
	provider provider.Provider
	state    StateStore
	interval time.Duration
	now      func() time.Time

	inFlight atomic.Bool
	wg       sync.WaitGroup

	slotMu  sync.Mutex
	pending *followUp

	mu     sync.RWMutex
	sinks  []Sink
	latest usage.Snapshot
	subs   map[chan Update]struct{}
}

type followUp struct {
	ctx    context.Context
	reason Trigger
}

// NewPoller creates a poller. A non-positive interval means DefaultInterval.
func NewPoller(prov provider.Provider, state StateStore, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		provider: prov,
		state:    state,
		interval: interval,
		now:      time.Now,
		latest:   usage.DefaultSnapshot(),
		subs:     make(map[chan Update]struct{}),
	}
}

// AddSink registers a sink for future snapshots.
func (p *Poller) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Interval returns the timer period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start polls once immediately and then on every tick. It blocks until ctx
// is cancelled and any running poll has returned.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Infof("Poller started (provider=%s interval=%s)", p.provider.ID(), p.interval)
	p.Trigger(ctx, TriggerStartup)

	for {
		select {
		case <-ctx.Done():
			log.Info("Poller stopping due to context cancellation")
			p.wg.Wait()
			return
		case <-ticker.C:
			p.Trigger(ctx, TriggerTimer)
		}
	}
}

// Trigger starts a poll in the background. It returns false, without
// polling, when a poll is already in flight.
func (p *Poller) Trigger(ctx context.Context, reason Trigger) bool {
	if !p.acquire() {
		log.Debugf("Poll trigger %q dropped: poll in flight", reason)
		TriggersDropped.WithLabelValues(string(reason)).Inc()
		return false
	}
	p.spawn(ctx, reason)
	return true
}

// TriggerAfter is like Trigger, but when a poll is already in flight it
// queues one more poll to run as soon as that one returns. Queued triggers
// coalesce: only the most recent one runs.
func (p *Poller) TriggerAfter(ctx context.Context, reason Trigger) {
	p.slotMu.Lock()
	if p.inFlight.Load() {
		if p.pending != nil {
			TriggersDropped.WithLabelValues(string(p.pending.reason)).Inc()
		}
		p.pending = &followUp{ctx: ctx, reason: reason}
		p.slotMu.Unlock()
		log.Debugf("Poll trigger %q queued behind the running poll", reason)
		return
	}
	p.inFlight.Store(true)
	p.slotMu.Unlock()
	p.spawn(ctx, reason)
}

// RunOnce polls synchronously and returns the resulting update.
func (p *Poller) RunOnce(ctx context.Context, reason Trigger) (Update, error) {
	if !p.acquire() {
		TriggersDropped.WithLabelValues(string(reason)).Inc()
		return Update{}, ErrPollInFlight
	}
	update := p.poll(ctx, reason)
	if next := p.release(); next != nil {
		p.spawn(next.ctx, next.reason)
	}
	return update, nil
}

func (p *Poller) acquire() bool {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()
	if p.inFlight.Load() {
		return false
	}
	p.inFlight.Store(true)
	return true
}

// release frees the slot, or keeps it and hands back the queued follow-up.
func (p *Poller) release() *followUp {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()
	next := p.pending
	p.pending = nil
	if next == nil {
		p.inFlight.Store(false)
	}
	return next
}

// spawn runs a poll on a goroutine that already owns the slot, followed by
// any poll queued while it ran.
func (p *Poller) spawn(ctx context.Context, reason Trigger) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			p.poll(ctx, reason)
			next := p.release()
			if next == nil {
				return
			}
			ctx, reason = next.ctx, next.reason
		}
	}()
}

// InFlight reports whether a poll is running.
func (p *Poller) InFlight() bool {
	return p.inFlight.Load()
}

// Wait blocks until background polls, including queued follow-ups, have
// returned.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Latest returns the most recent snapshot.
func (p *Poller) Latest() usage.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Subscribe returns a channel receiving every future update. The channel
// holds one pending update; a slow reader only sees the newest one.
func (p *Poller) Subscribe() <-chan Update {
	ch := make(chan Update, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (p *Poller) Unsubscribe(ch <-chan Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		if sub == ch {
			delete(p.subs, sub)
			close(sub)
			return
		}
	}
}

// Reload re-reads the persisted state and publishes it as a cached
// snapshot. It is used when the file was changed by someone else.
func (p *Poller) Reload(ctx context.Context) (usage.Snapshot, error) {
	st, err := p.state.Load()
	if err != nil {
		return p.Latest(), fmt.Errorf("failed to reload state: %w", err)
	}
	if st == nil {
		return p.Latest(), nil
	}

	snap := st.Snapshot()
	now := p.now()
	observeSnapshot(snap, false)
	p.publish(Update{
		PollID:    uuid.NewString(),
		Trigger:   TriggerFile,
		Snapshot:  snap,
		Timestamp: now,
	})
	return snap, nil
}

func (p *Poller) poll(ctx context.Context, reason Trigger) Update {
	pollID := uuid.NewString()
	logger := log.WithFields(log.Fields{"poll_id": pollID, "trigger": reason})
	start := p.now()

	result := p.provider.Poll(ctx)
	duration := p.now().Sub(start)
	FetchTotal.WithLabelValues(string(result.Status)).Inc()
	FetchDuration.Observe(duration.Seconds())

	switch result.Status {
	case provider.StatusSuccess:
		logger.Infof("Usage fetched in %s", duration.Round(time.Millisecond))
	case provider.StatusNotAttempted:
		logger.Infof("Fetch not attempted: %s", result.Message())
	default:
		logger.WithError(result.Error).Warn("Fetch failed")
	}

	persisted, loadErr := p.state.Load()
	if loadErr != nil {
		logger.WithError(loadErr).Warn("Failed to load persisted state")
	}

	now := p.now()
	rec := Reconcile(result, persisted, now)
	if loadErr != nil && result.Status != provider.StatusSuccess {
		// An unreadable file is left for the user to fix.
		rec.Persist = nil
		if rec.Snapshot.Warning == "" {
			rec.Snapshot.Warning = loadErr.Error()
		}
	}

	update := Update{
		PollID:    pollID,
		Trigger:   reason,
		Status:    result.Status,
		Snapshot:  rec.Snapshot,
		Err:       result.Error,
		Timestamp: now,
		Duration:  duration,
	}

	if rec.Persist != nil {
		if err := p.state.Save(rec.Persist); err != nil {
			logger.WithError(err).Error("Failed to persist state")
			update.Err = errors.Join(update.Err, err)
		}
	}

	p.mu.RLock()
	sinks := make([]Sink, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Record(ctx, pollID, string(reason), rec.Snapshot); err != nil {
			logger.WithError(err).Warn("Failed to record snapshot")
		}
	}

	observeSnapshot(rec.Snapshot, result.Status == provider.StatusSuccess)
	p.publish(update)
	return update
}

func (p *Poller) publish(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = u.Snapshot
	for ch := range p.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		// Replace the stale pending update with the new one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}
