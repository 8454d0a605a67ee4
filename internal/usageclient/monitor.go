package usageclient

import (
	"chat-quota-api/internal/logger"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

const (
	// MinRefetchInterval is the minimum gap between automatic fetches.
	MinRefetchInterval = 10 * time.Second
	// VisibilityGuard suppresses visibility-triggered fetches this soon after the last fetch.
	VisibilityGuard = 30 * time.Second
)

var ErrMonitorClosed = errors.New("usage monitor closed")

type trigger string

const (
	triggerMount      trigger = "mount"
	triggerManual     trigger = "manual"
	triggerVisibility trigger = "visibility"
	triggerResetTimer trigger = "reset_timer"
	triggerPoll       trigger = "poll"
)

// Monitor keeps one session's view of its quota fresh. It owns the reset timer,
// the optional poll timer, and the last-seen messages-left snapshot. A user
// change means Close and a new Monitor.
type Monitor struct {
	fetcher      Fetcher
	clock        quartz.Clock
	pollInterval time.Duration
	onUpdate     func(Usage)
	onReset      func(Usage)
	onError      func(error)

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	closed       bool
	lastFetch    time.Time
	current      *Usage
	previousLeft *int
	resetPending bool
	resetTimer   *quartz.Timer
	pollTimer    *quartz.Timer
}

type MonitorOption func(*Monitor)

func WithMonitorClock(clock quartz.Clock) MonitorOption {
	return func(m *Monitor) { m.clock = clock }
}

// WithPollInterval enables a periodic background fetch. Zero disables it.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.pollInterval = d }
}

func OnUpdate(fn func(Usage)) MonitorOption {
	return func(m *Monitor) { m.onUpdate = fn }
}

// OnReset is called once per 0 to positive messages-left edge observed by the
// first successful fetch after the reset timer fired. A failed reset fetch is
// retried every MinRefetchInterval.
func OnReset(fn func(Usage)) MonitorOption {
	return func(m *Monitor) { m.onReset = fn }
}

func OnError(fn func(error)) MonitorOption {
	return func(m *Monitor) { m.onError = fn }
}

func NewMonitor(fetcher Fetcher, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		fetcher:  fetcher,
		clock:    quartz.NewReal(),
		onUpdate: func(Usage) {},
		onReset:  func(Usage) {},
		onError:  func(error) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start performs the initial fetch. ctx bounds every fetch the monitor makes
// on its own, so cancelling it has the same effect as Close.
func (m *Monitor) Start(ctx context.Context) (*Usage, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMonitorClosed
	}
	if m.cancel == nil {
		m.ctx, m.cancel = context.WithCancel(ctx)
		m.schedulePollLocked()
	}
	m.mu.Unlock()

	return m.fetch(ctx, triggerMount)
}

// Refetch fetches immediately. Manual refreshes are never debounced.
func (m *Monitor) Refetch(ctx context.Context) (*Usage, error) {
	return m.fetch(ctx, triggerManual)
}

// VisibilityChanged reports a tab-visibility change. It fetches only when the
// view became visible, the known reset time has passed and the last fetch is
// older than both MinRefetchInterval and VisibilityGuard.
func (m *Monitor) VisibilityChanged(ctx context.Context, visible bool) (bool, error) {
	if !visible {
		return false, nil
	}

	m.mu.Lock()
	if m.closed || m.current == nil || m.current.ResetTime == nil {
		m.mu.Unlock()
		return false, nil
	}
	now := m.clock.Now()
	since := now.Sub(m.lastFetch)
	due := now.After(*m.current.ResetTime) && since >= MinRefetchInterval && since >= VisibilityGuard
	m.mu.Unlock()

	if !due {
		return false, nil
	}
	_, err := m.fetch(ctx, triggerVisibility)
	return true, err
}

// Current returns the last fetched usage, or nil before the first fetch.
func (m *Monitor) Current() *Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	u := *m.current
	return &u
}

// Close stops all timers. Fetches already in flight finish but report nothing.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	stopTimer(m.resetTimer)
	stopTimer(m.pollTimer)
	m.resetTimer, m.pollTimer = nil, nil
}

func (m *Monitor) fetch(ctx context.Context, why trigger) (*Usage, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMonitorClosed
	}
	m.lastFetch = m.clock.Now()
	m.mu.Unlock()

	usage, err := m.fetcher.Usage(ctx)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"trigger": string(why),
			"error":   err,
		}).Warn("Usage fetch failed")
		m.onError(err)
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMonitorClosed
	}
	previous := m.previousLeft
	left := usage.MessagesLeft
	m.previousLeft = &left
	fireReset := m.resetPending && previous != nil && *previous == 0 && left > 0
	m.resetPending = false
	snapshot := *usage
	m.current = &snapshot
	m.scheduleResetLocked()
	m.mu.Unlock()

	m.onUpdate(*usage)
	if fireReset {
		logger.LogEvent(logrus.InfoLevel, "Quota reset observed", logrus.Fields{
			"messages_left": left,
		})
		m.onReset(*usage)
	}
	return usage, nil
}

func (m *Monitor) scheduleResetLocked() {
	stopTimer(m.resetTimer)
	m.resetTimer = nil
	if m.ctx == nil || m.current.ResetTime == nil {
		return
	}
	d := m.current.ResetTime.Sub(m.clock.Now())
	if d <= 0 {
		return
	}
	m.resetTimer = m.clock.AfterFunc(d, m.resetTimerFired, "Monitor", "reset")
}

func (m *Monitor) resetTimerFired() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if wait := MinRefetchInterval - m.clock.Since(m.lastFetch); wait > 0 {
		m.resetTimer = m.clock.AfterFunc(wait, m.resetTimerFired, "Monitor", "reset")
		m.mu.Unlock()
		return
	}
	// Stays set until a fetch succeeds, so a failed reset fetch does not lose the edge.
	m.resetPending = true
	ctx := m.ctx
	m.mu.Unlock()

	if _, err := m.fetch(ctx, triggerResetTimer); err != nil && !errors.Is(err, ErrMonitorClosed) {
		m.mu.Lock()
		if !m.closed && m.resetPending {
			stopTimer(m.resetTimer)
			m.resetTimer = m.clock.AfterFunc(MinRefetchInterval, m.resetTimerFired, "Monitor", "reset")
		}
		m.mu.Unlock()
	}
}

func (m *Monitor) schedulePollLocked() {
	if m.pollInterval <= 0 {
		return
	}
	m.pollTimer = m.clock.AfterFunc(m.pollInterval, m.pollFired, "Monitor", "poll")
}

func (m *Monitor) pollFired() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	due := m.clock.Since(m.lastFetch) >= MinRefetchInterval
	ctx := m.ctx
	m.schedulePollLocked()
	m.mu.Unlock()

	if due {
		_, _ = m.fetch(ctx, triggerPoll)
	}
}

func stopTimer(t *quartz.Timer) {
	if t != nil {
		t.Stop()
	}
}
