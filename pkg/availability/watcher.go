package availability

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fleetconsole/pkg/models"

	"github.com/google/uuid"
)

var (
	ErrWatcherClosed  = errors.New("watcher is closed")
	ErrUnknownSession = errors.New("unknown session")
)

// Watcher owns the supervisors of one console session: a supervisor runs
// for every device the session is currently viewing.
type Watcher struct {
	checker  Checker
	interval time.Duration
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	supervisors map[int64]*Supervisor
	closed      bool
}

// NewWatcher creates a watcher whose supervisors stop when ctx is cancelled.
func NewWatcher(ctx context.Context, checker Checker, interval time.Duration, opts Options) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	return &Watcher{
		checker:     checker,
		interval:    interval,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		supervisors: make(map[int64]*Supervisor),
	}
}

// Enter starts polling deviceID. Entering an already watched device keeps
// the running supervisor.
func (w *Watcher) Enter(deviceID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.supervisors[deviceID]; ok {
		return nil
	}

	supervisor := NewSupervisor(deviceID, w.checker, w.interval, w.opts)
	w.supervisors[deviceID] = supervisor
	supervisor.Start(w.ctx)
	return nil
}

// Leave stops polling deviceID. It reports whether the device was watched.
func (w *Watcher) Leave(deviceID int64) bool {
	w.mu.Lock()
	supervisor, ok := w.supervisors[deviceID]
	delete(w.supervisors, deviceID)
	w.mu.Unlock()

	if ok {
		supervisor.Stop()
	}
	return ok
}

// State returns the availability of a watched device.
func (w *Watcher) State(deviceID int64) (models.AvailabilityState, bool) {
	w.mu.Lock()
	supervisor, ok := w.supervisors[deviceID]
	w.mu.Unlock()

	if !ok {
		return models.AvailabilityState{}, false
	}
	return supervisor.State(), true
}

// Devices lists the watched device ids in ascending order.
func (w *Watcher) Devices() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]int64, 0, len(w.supervisors))
	for id := range w.supervisors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close stops every supervisor. Further Enter calls fail.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	supervisors := w.supervisors
	w.supervisors = make(map[int64]*Supervisor)
	w.mu.Unlock()

	for _, supervisor := range supervisors {
		supervisor.Stop()
	}
	w.cancel()
}

// Sessions tracks the watcher of every open console session. A session not
// looked up for idleTimeout is closed by Reap, so a console that goes away
// without closing its session stops polling.
type Sessions struct {
	ctx         context.Context
	checker     Checker
	interval    time.Duration
	idleTimeout time.Duration
	clock       Clock
	opts        Options

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	watcher  *Watcher
	lastSeen time.Time
}

// NewSessions creates an empty session registry. A non-positive idleTimeout
// keeps sessions until they are closed explicitly.
func NewSessions(ctx context.Context, checker Checker, interval, idleTimeout time.Duration, opts Options) *Sessions {
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Sessions{
		ctx:         ctx,
		checker:     checker,
		interval:    interval,
		idleTimeout: idleTimeout,
		clock:       clock,
		opts:        opts,
		sessions:    make(map[string]*session),
	}
}

// Open starts a session and returns its id.
func (s *Sessions) Open() string {
	id := uuid.NewString()
	watcher := NewWatcher(s.ctx, s.checker, s.interval, s.opts)

	s.mu.Lock()
	s.sessions[id] = &session{watcher: watcher, lastSeen: s.clock.Now()}
	s.mu.Unlock()
	return id
}

// Get returns the watcher of an open session and marks the session as seen.
func (s *Sessions) Get(id string) (*Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	sess.lastSeen = s.clock.Now()
	return sess.watcher, nil
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends a session and stops its supervisors.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	sess.watcher.Close()
	return nil
}

// Reap closes every session idle for at least the idle timeout and returns
// how many were closed.
func (s *Sessions) Reap() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	now := s.clock.Now()

	var idle []*Watcher
	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.idleTimeout {
			idle = append(idle, sess.watcher)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, watcher := range idle {
		watcher.Close()
	}
	if len(idle) > 0 {
		slog.Info("Closed idle sessions", "component", "Sessions", "count", len(idle))
	}
	return len(idle)
}

// Run reaps idle sessions once per poll interval until ctx is cancelled.
func (s *Sessions) Run(ctx context.Context) {
	if s.idleTimeout <= 0 {
		return
	}
	interval := s.interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Reap()
		}
	}
}

// CloseAll ends every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.watcher.Close()
	}
}
