// Package dispatch executes plugin operations against custom devices.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"fleetconsole/pkg/models"
)

var (
	ErrNotCustomDevice = errors.New("device is not plugin-driven")
	ErrOperationFailed = errors.New("operation failed")
	ErrInvalidRequest  = errors.New("invalid dispatch request")
)

// DeviceFetcher loads device records.
type DeviceFetcher interface {
	FetchDevice(ctx context.Context, deviceID int64) (*models.Device, error)
}

// Invoker runs an operation on the backend.
type Invoker interface {
	InvokeOperation(ctx context.Context, deviceID int64, operationID string, params map[string]any) (map[string]any, error)
}

// Refresher is told when a device's cached telemetry is stale.
type Refresher interface {
	Invalidate(deviceID int64)
}

// Recorder keeps an audit trail of executions.
type Recorder interface {
	Record(ctx context.Context, record *models.ExecutionRecord) error
}

// Request identifies one operation invocation.
type Request struct {
	DeviceID    int64          `json:"device_id"`
	OperationID string         `json:"operation_id"`
	Row         map[string]any `json:"row,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Display is the modal content produced by an execution.
type Display struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Outcome is the result of a successful execution.
type Outcome struct {
	DeviceID    int64          `json:"device_id"`
	OperationID string         `json:"operation_id"`
	Result      map[string]any `json:"result"`
	Display     *Display       `json:"display,omitempty"`
	ExecutedAt  time.Time      `json:"executed_at"`
}

// Dispatcher merges parameters, invokes operations and reports their results.
// It is safe for concurrent use. Only confirmations awaiting approval are
// held between calls.
type Dispatcher struct {
	devices   DeviceFetcher
	invoker   Invoker
	refresher Refresher
	recorder  Recorder

	pendingTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]*Pending
}

// NewDispatcher creates a dispatcher. refresher and recorder may be nil.
func NewDispatcher(devices DeviceFetcher, invoker Invoker, refresher Refresher, recorder Recorder, pendingTTL time.Duration) *Dispatcher {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &Dispatcher{
		devices:    devices,
		invoker:    invoker,
		refresher:  refresher,
		recorder:   recorder,
		pendingTTL: pendingTTL,
		now:        time.Now,
		pending:    make(map[string]*Pending),
	}
}

// Execute runs req against its device. Connection parameters, the row and the
// user parameters are merged in that order. The device's telemetry is
// invalidated whether or not the operation succeeds.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if req.DeviceID <= 0 || req.OperationID == "" {
		return nil, fmt.Errorf("%w: device and operation are required", ErrInvalidRequest)
	}

	device, err := d.devices.FetchDevice(ctx, req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("load device %d: %w", req.DeviceID, err)
	}
	if !device.IsCustom() {
		return nil, fmt.Errorf("device %d: %w", req.DeviceID, ErrNotCustomDevice)
	}

	params := MergeParams(device.ConnectionParams(), req.Row, req.Params)

	slog.Info("Executing operation", "component", "Dispatcher", "device_id", req.DeviceID, "operation", req.OperationID)
	result, err := d.invoker.InvokeOperation(ctx, req.DeviceID, req.OperationID, params)
	if err == nil {
		if reason, failed := resultError(result); failed {
			err = fmt.Errorf("%w: %s", ErrOperationFailed, reason)
		}
	} else {
		err = fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}

	if d.refresher != nil {
		d.refresher.Invalidate(req.DeviceID)
	}

	executedAt := d.now()
	outcome := &Outcome{
		DeviceID:    req.DeviceID,
		OperationID: req.OperationID,
		Result:      result,
		Display:     Render(req.OperationID, result),
		ExecutedAt:  executedAt,
	}
	d.record(ctx, req, params, outcome, err)

	if err != nil {
		slog.Warn("Operation failed", "component", "Dispatcher", "device_id", req.DeviceID, "operation", req.OperationID, "error", err)
		return nil, fmt.Errorf("device %d operation %q: %w", req.DeviceID, req.OperationID, err)
	}
	return outcome, nil
}

func (d *Dispatcher) record(ctx context.Context, req Request, params map[string]any, outcome *Outcome, execErr error) {
	if d.recorder == nil {
		return
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		slog.Error("Failed to encode execution params", "component", "Dispatcher", "error", err)
		return
	}

	record := &models.ExecutionRecord{
		DeviceID:    req.DeviceID,
		OperationID: req.OperationID,
		Params:      string(encoded),
		Success:     execErr == nil,
		ExecutedAt:  outcome.ExecutedAt,
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	if outcome.Display != nil {
		record.Summary = summarize(outcome.Display.Body)
	}

	if err := d.recorder.Record(ctx, record); err != nil {
		slog.Error("Failed to record execution", "component", "Dispatcher", "device_id", req.DeviceID, "error", err)
	}
}

// MergeParams overlays the layers left to right; later layers win on key
// collision. None of the inputs are modified.
func MergeParams(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		maps.Copy(merged, layer)
	}
	return merged
}

// Render picks the displayable part of a result: logs, then output, then the
// result field (indented JSON unless already text). Empty values are skipped.
// It returns nil when none are present.
func Render(operationID string, result map[string]any) *Display {
	for _, key := range []string{"logs", "output"} {
		if value := result[key]; !isEmpty(value) {
			return &Display{Title: operationID, Body: text(value)}
		}
	}
	value := result["result"]
	if isEmpty(value) {
		return nil
	}
	if s, isString := value.(string); isString {
		return &Display{Title: operationID, Body: s}
	}
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return &Display{Title: operationID, Body: fmt.Sprint(value)}
	}
	return &Display{Title: operationID, Body: string(encoded)}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func text(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		var lines []byte
		for i, line := range v {
			if i > 0 {
				lines = append(lines, '\n')
			}
			lines = append(lines, text(line)...)
		}
		return string(lines)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

func resultError(result map[string]any) (string, bool) {
	value, ok := result["error"]
	if !ok || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, v != ""
	case bool:
		return "plugin reported an error", v
	}
	return text(value), true
}

const summaryLimit = 512

func summarize(body string) string {
	runes := []rune(body)
	if len(runes) <= summaryLimit {
		return body
	}
	return string(runes[:summaryLimit])
}
