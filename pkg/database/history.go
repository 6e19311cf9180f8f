package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetconsole/pkg/models"
)

// History persists operation executions and availability samples.
type History struct {
	executions Repository[models.ExecutionRecord]
	samples    Repository[models.AvailabilitySample]
	cipher     *Cipher
}

// NewHistory creates a history store. Execution params are encrypted with cipher.
func NewHistory(executions Repository[models.ExecutionRecord], samples Repository[models.AvailabilitySample], cipher *Cipher) *History {
	return &History{executions: executions, samples: samples, cipher: cipher}
}

// Record stores an execution with its params encrypted. The caller's record
// is left untouched.
func (h *History) Record(ctx context.Context, record *models.ExecutionRecord) error {
	stored := *record
	if err := h.cipher.Encrypt(&stored); err != nil {
		return fmt.Errorf("encrypt execution params: %w", err)
	}
	if _, err := h.executions.Create(ctx, &stored); err != nil {
		return fmt.Errorf("store execution: %w", err)
	}
	record.ID = stored.ID
	return nil
}

// Executions lists a device's most recent executions with params decrypted.
func (h *History) Executions(ctx context.Context, deviceID int64, limit int) ([]*models.ExecutionRecord, error) {
	records, err := h.executions.ListByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := h.cipher.Decrypt(record); err != nil {
			return nil, fmt.Errorf("decrypt execution %d: %w", record.ID, err)
		}
	}
	return records, nil
}

// RecordAvailability stores a resolved availability check. Unresolved
// states are ignored.
func (h *History) RecordAvailability(ctx context.Context, state models.AvailabilityState) error {
	if state.IsAvailable == nil {
		return nil
	}
	sample := &models.AvailabilitySample{
		DeviceID:    state.DeviceID,
		IsAvailable: *state.IsAvailable,
		Error:       state.LastError,
		CheckedAt:   state.LastCheckedAt,
	}
	if _, err := h.samples.Create(ctx, sample); err != nil {
		return fmt.Errorf("store availability sample: %w", err)
	}
	return nil
}

// AvailabilitySamples lists a device's most recent availability samples.
func (h *History) AvailabilitySamples(ctx context.Context, deviceID int64, limit int) ([]*models.AvailabilitySample, error) {
	return h.samples.ListByDevice(ctx, deviceID, limit)
}

// Prune deletes history older than retention.
func (h *History) Prune(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)

	executions, err := h.executions.DeleteBefore(ctx, "executed_at", cutoff)
	if err != nil {
		return fmt.Errorf("prune executions: %w", err)
	}
	samples, err := h.samples.DeleteBefore(ctx, "checked_at", cutoff)
	if err != nil {
		return fmt.Errorf("prune availability samples: %w", err)
	}
	slog.Info("Pruned history", "component", "History", "executions", executions, "samples", samples)
	return nil
}

// NopRecorder discards executions. It is used when history is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.ExecutionRecord) error { return nil }
