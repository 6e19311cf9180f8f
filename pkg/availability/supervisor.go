// Package availability keeps a device's reachability signal fresh while it is
// being viewed.
package availability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fleetconsole/pkg/models"
)

// DefaultInterval is the delay between consecutive availability checks.
const DefaultInterval = 5 * time.Second

// Checker performs one reachability check.
type Checker interface {
	CheckAvailability(ctx context.Context, deviceID int64) (bool, error)
}

// Options tune a Supervisor. The zero value uses the real clock.
type Options struct {
	Clock Clock
	// OnChange is called after every resolved check with the new state.
	OnChange func(models.AvailabilityState)
}

// Supervisor polls one device: an immediate check on Start, then one per
// interval. Checks never overlap. Once stopped, no further check is issued
// and the result of an in-flight check is discarded.
type Supervisor struct {
	deviceID int64
	checker  Checker
	interval time.Duration
	clock    Clock
	onChange func(models.AvailabilityState)

	mu      sync.Mutex
	state   models.AvailabilityState
	started bool
	stopped bool
	cancel  context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once
}

// NewSupervisor creates an idle supervisor for deviceID.
func NewSupervisor(deviceID int64, checker Checker, interval time.Duration, opts Options) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Supervisor{
		deviceID: deviceID,
		checker:  checker,
		interval: interval,
		clock:    opts.Clock,
		onChange: opts.OnChange,
		state: models.AvailabilityState{
			DeviceID: deviceID,
			Status:   models.AvailabilityIdle,
		},
		done: make(chan struct{}),
	}
}

// Start launches the poll loop. It is a no-op if the supervisor was already
// started or stopped. Cancelling ctx stops the supervisor.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	slog.Debug("Starting availability supervisor", "component", "Availability", "device_id", s.deviceID, "interval", s.interval)
	go s.run(ctx)
}

// Stop ends polling. It is safe to call more than once and from any goroutine.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.state.Status = models.AvailabilityStopped
		cancel := s.cancel
		started := s.started
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if !started {
			close(s.done)
		}
		slog.Debug("Stopped availability supervisor", "component", "Availability", "device_id", s.deviceID)
	})
}

// Done is closed once the poll loop has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State returns a copy of the current state.
func (s *Supervisor) State() models.AvailabilityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Supervisor) copyLocked() models.AvailabilityState {
	state := s.state
	if state.IsAvailable != nil {
		available := *state.IsAvailable
		state.IsAvailable = &available
	}
	return state
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.Chan():
			s.check(ctx)
		}
	}
}

func (s *Supervisor) check(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.state.Status = models.AvailabilityChecking
	s.mu.Unlock()

	available, err := s.checker.CheckAvailability(ctx, s.deviceID)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if err != nil {
		available = false
		s.state.LastError = err.Error()
		slog.Debug("Availability check failed", "component", "Availability", "device_id", s.deviceID, "error", err)
	} else {
		s.state.LastError = ""
	}
	s.state.IsAvailable = &available
	s.state.LastCheckedAt = s.clock.Now()
	if available {
		s.state.Status = models.AvailabilityAvailable
	} else {
		s.state.Status = models.AvailabilityUnavailable
	}
	state := s.copyLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(state)
	}
}
