package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultPendingTTL is how long a confirmation stays valid.
const DefaultPendingTTL = 2 * time.Minute

// ErrUnknownConfirmation is returned for a missing, used or expired token.
var ErrUnknownConfirmation = errors.New("unknown or expired confirmation")

// Pending is a request awaiting the operator's confirmation.
type Pending struct {
	Token     string    `json:"pending_token"`
	Request   Request   `json:"request"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Prepare executes req immediately unless requireConfirm is set, in which case
// the request is parked and a Pending entry is returned instead.
func (d *Dispatcher) Prepare(ctx context.Context, req Request, requireConfirm bool) (*Outcome, *Pending, error) {
	if !requireConfirm {
		outcome, err := d.Execute(ctx, req)
		return outcome, nil, err
	}
	if req.DeviceID <= 0 || req.OperationID == "" {
		return nil, nil, fmt.Errorf("%w: device and operation are required", ErrInvalidRequest)
	}

	pending := &Pending{
		Token:     uuid.NewString(),
		Request:   req,
		ExpiresAt: d.now().Add(d.pendingTTL),
	}

	d.mu.Lock()
	d.expireLocked()
	d.pending[pending.Token] = pending
	d.mu.Unlock()

	slog.Info("Operation awaiting confirmation", "component", "Dispatcher", "device_id", req.DeviceID, "operation", req.OperationID, "token", pending.Token)
	return nil, pending, nil
}

// Confirm executes a parked request. The token is consumed even when the
// execution fails; the operator may dispatch again.
func (d *Dispatcher) Confirm(ctx context.Context, token string) (*Outcome, error) {
	pending, err := d.take(token)
	if err != nil {
		return nil, err
	}
	return d.Execute(ctx, pending.Request)
}

// Cancel discards a parked request.
func (d *Dispatcher) Cancel(token string) error {
	_, err := d.take(token)
	return err
}

// PendingCount returns the number of live confirmations.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireLocked()
	return len(d.pending)
}

func (d *Dispatcher) take(token string) (*Pending, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireLocked()

	pending, ok := d.pending[token]
	if !ok {
		return nil, ErrUnknownConfirmation
	}
	delete(d.pending, token)
	return pending, nil
}

func (d *Dispatcher) expireLocked() {
	now := d.now()
	for token, pending := range d.pending {
		if !now.Before(pending.ExpiresAt) {
			delete(d.pending, token)
		}
	}
}
