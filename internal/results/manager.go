// Package results caches the latest analysis and fans it out to subscribers.
package results

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yardstick/benchalign/internal/pipeline"
	"github.com/yardstick/benchalign/internal/report"
)

// RunFunc performs one full analysis.
type RunFunc func(ctx context.Context) (*pipeline.Result, error)

// Snapshot is one completed analysis. Its contents are never modified after
// publication.
type Snapshot struct {
	Sequence uint64
	Result   *pipeline.Result
	Report   *report.Report
	Duration time.Duration
}

// Manager re-runs the analysis on demand or on a timer, caches the latest
// snapshot and fans out updates to subscribers.
type Manager struct {
	run      RunFunc
	interval time.Duration
	logger   *slog.Logger
	reload   chan struct{}

	mu          sync.RWMutex
	latest      *Snapshot
	lastErr     error
	runs        uint64
	subscribers map[*subscriber]struct{}
	closeOnce   sync.Once
}

// NewManager builds a Manager. A zero interval disables periodic refresh.
func NewManager(run RunFunc, interval time.Duration, logger *slog.Logger) (*Manager, error) {
	if run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	if interval < 0 {
		return nil, fmt.Errorf("interval must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		run:         run,
		interval:    interval,
		logger:      logger.With("component", "results"),
		reload:      make(chan struct{}, 1),
		subscribers: make(map[*subscriber]struct{}),
	}, nil
}

// Run performs an initial analysis, then repeats it on reload requests and
// timer ticks until the context is canceled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("results manager started", "refresh_interval", m.interval)
	m.execute(ctx, "startup")

	var tick <-chan time.Time
	if m.interval > 0 {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("results manager stopping", "reason", ctx.Err())
			return m.Close()
		case <-m.reload:
			m.execute(ctx, "reload")
		case <-tick:
			m.execute(ctx, "refresh")
		}
	}
}

// Reload requests a new analysis. Requests made while one is already queued
// are coalesced; the return value reports whether a new request was queued.
func (m *Manager) Reload() bool {
	select {
	case m.reload <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manager) execute(ctx context.Context, trigger string) {
	started := time.Now()
	result, err := m.run(ctx)
	elapsed := time.Since(started)

	m.mu.Lock()
	m.runs++
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		if ctx.Err() == nil {
			m.logger.Error("analysis failed", "trigger", trigger, "duration", elapsed, "err", err)
		}
		return
	}

	snapshot := &Snapshot{
		Sequence: m.runs,
		Result:   result,
		Report:   report.Build(result),
		Duration: elapsed,
	}
	m.latest = snapshot
	m.lastErr = nil

	targets := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	m.logger.Info("analysis published", "trigger", trigger, "sequence", snapshot.Sequence,
		"sections", len(snapshot.Report.Sections), "duration", elapsed)
	for _, sub := range targets {
		sub.send(*snapshot)
	}
}

// Latest returns the most recent snapshot.
func (m *Manager) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	return *m.latest, true
}

// LastError returns the error of the most recent run, nil if it succeeded.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Runs returns the number of completed analysis attempts.
func (m *Manager) Runs() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs
}

// Ready reports whether a snapshot has been published.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest != nil
}

// Subscribe registers a listener. The current snapshot, if any, is delivered
// immediately.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := newSubscriber()
	m.subscribers[sub] = struct{}{}
	if m.latest != nil {
		sub.send(*m.latest)
	}

	return sub.channel(), func() { m.removeSubscriber(sub) }
}

func (m *Manager) removeSubscriber(sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, sub)
	sub.close()
}

// Close releases every subscriber. Safe for repeated use.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for sub := range m.subscribers {
			sub.close()
		}
		clear(m.subscribers)
	})
	return nil
}

type subscriber struct {
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Snapshot, 1)}
}

func (s *subscriber) channel() <-chan Snapshot {
	return s.ch
}

func (s *subscriber) send(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snapshot:
		return
	default:
		// Drop oldest to make room for the new snapshot.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snapshot:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
