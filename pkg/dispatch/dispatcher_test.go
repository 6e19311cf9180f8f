package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetconsole/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevices map[int64]*models.Device

func (f fakeDevices) FetchDevice(_ context.Context, id int64) (*models.Device, error) {
	device, ok := f[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return device, nil
}

type invocation struct {
	deviceID    int64
	operationID string
	params      map[string]any
}

type fakeInvoker struct {
	mu     sync.Mutex
	calls  []invocation
	result map[string]any
	err    error
}

func (f *fakeInvoker) InvokeOperation(_ context.Context, deviceID int64, operationID string, params map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{deviceID, operationID, params})
	return f.result, f.err
}

type fakeRefresher struct{ invalidated []int64 }

func (f *fakeRefresher) Invalidate(deviceID int64) { f.invalidated = append(f.invalidated, deviceID) }

type fakeRecorder struct{ records []*models.ExecutionRecord }

func (f *fakeRecorder) Record(_ context.Context, record *models.ExecutionRecord) error {
	f.records = append(f.records, record)
	return nil
}

func customDevice() *models.Device {
	return &models.Device{
		ID:   1,
		Name: "router",
		Type: models.DeviceTypeCustom,
		Custom: &models.CustomDevice{
			PluginID:         9,
			ConnectionParams: map[string]any{"host": "10.0.0.1", "user": "admin", "timeout": 5},
		},
	}
}

func newTestDispatcher(invoker *fakeInvoker) (*Dispatcher, *fakeRefresher, *fakeRecorder) {
	refresher := &fakeRefresher{}
	recorder := &fakeRecorder{}
	devices := fakeDevices{
		1: customDevice(),
		2: {ID: 2, Name: "laptop", Type: models.DeviceTypeStandard, Standard: &models.StandardDevice{OSType: "linux", Hostname: "laptop"}},
	}
	return NewDispatcher(devices, invoker, refresher, recorder, time.Minute), refresher, recorder
}

func TestMergeParams(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 3, "c": 4}
	c := map[string]any{"c": 5, "d": 6}

	merged := MergeParams(a, b, c)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 5, "d": 6}, merged)

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, a)
	assert.Equal(t, map[string]any{"b": 3, "c": 4}, b)
	assert.Equal(t, map[string]any{"c": 5, "d": 6}, c)

	assert.Empty(t, MergeParams(nil, nil))
}

func TestExecuteMergesAndRendersLogs(t *testing.T) {
	invoker := &fakeInvoker{result: map[string]any{"logs": "restarted", "output": "ignored"}}
	dispatcher, refresher, recorder := newTestDispatcher(invoker)

	outcome, err := dispatcher.Execute(context.Background(), Request{
		DeviceID:    1,
		OperationID: "restart_service",
		Row:         map[string]any{"name": "sshd", "user": "row-user"},
		Params:      map[string]any{"user": "operator", "force": true},
	})
	require.NoError(t, err)

	require.Len(t, invoker.calls, 1)
	assert.Equal(t, map[string]any{
		"host": "10.0.0.1", "timeout": 5, "name": "sshd", "user": "operator", "force": true,
	}, invoker.calls[0].params)
	assert.Equal(t, "admin", customDevice().Custom.ConnectionParams["user"])

	assert.Equal(t, &Display{Title: "restart_service", Body: "restarted"}, outcome.Display)
	assert.Equal(t, []int64{1}, refresher.invalidated)

	require.Len(t, recorder.records, 1)
	assert.True(t, recorder.records[0].Success)
	assert.Contains(t, recorder.records[0].Params, `"host":"10.0.0.1"`)
	assert.Equal(t, "restarted", recorder.records[0].Summary)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   *Display
	}{
		{name: "output", result: map[string]any{"output": "done"}, want: &Display{Title: "op", Body: "done"}},
		{name: "log lines", result: map[string]any{"logs": []any{"a", "b"}}, want: &Display{Title: "op", Body: "a\nb"}},
		{name: "string result", result: map[string]any{"result": "fine"}, want: &Display{Title: "op", Body: "fine"}},
		{
			name:   "structured result",
			result: map[string]any{"result": map[string]any{"ok": true}},
			want:   &Display{Title: "op", Body: "{\n  \"ok\": true\n}"},
		},
		{
			name:   "empty logs fall through to output",
			result: map[string]any{"logs": "", "output": "done"},
			want:   &Display{Title: "op", Body: "done"},
		},
		{
			name:   "empty log list falls through to result",
			result: map[string]any{"logs": []any{}, "output": "", "result": "fine"},
			want:   &Display{Title: "op", Body: "fine"},
		},
		{name: "only empty fields", result: map[string]any{"logs": "", "output": []any{}, "result": ""}, want: nil},
		{name: "nothing displayable", result: map[string]any{"status": "ok"}, want: nil},
		{name: "nil result", result: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render("op", tt.result))
		})
	}
}

func TestExecuteWithoutDisplay(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(&fakeInvoker{result: map[string]any{"status": "ok"}})

	outcome, err := dispatcher.Execute(context.Background(), Request{DeviceID: 1, OperationID: "noop"})
	require.NoError(t, err)
	assert.Nil(t, outcome.Display)
}

func TestExecuteFailureInvalidatesAndIsRetryable(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("connection refused")}
	dispatcher, refresher, recorder := newTestDispatcher(invoker)
	req := Request{DeviceID: 1, OperationID: "reboot"}

	_, err := dispatcher.Execute(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []int64{1}, refresher.invalidated)
	require.Len(t, recorder.records, 1)
	assert.False(t, recorder.records[0].Success)

	invoker.err = nil
	invoker.result = map[string]any{"output": "rebooting"}
	outcome, err := dispatcher.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "rebooting", outcome.Display.Body)
	assert.Len(t, invoker.calls, 2)
}

func TestExecuteResultErrorIsFailure(t *testing.T) {
	dispatcher, refresher, _ := newTestDispatcher(&fakeInvoker{result: map[string]any{"error": "permission denied"}})

	_, err := dispatcher.Execute(context.Background(), Request{DeviceID: 1, OperationID: "reboot"})
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, []int64{1}, refresher.invalidated)
}

func TestExecuteRejectsStandardAndUnknownDevices(t *testing.T) {
	invoker := &fakeInvoker{}
	dispatcher, refresher, _ := newTestDispatcher(invoker)

	_, err := dispatcher.Execute(context.Background(), Request{DeviceID: 2, OperationID: "reboot"})
	assert.ErrorIs(t, err, ErrNotCustomDevice)

	_, err = dispatcher.Execute(context.Background(), Request{DeviceID: 42, OperationID: "reboot"})
	assert.Error(t, err)

	_, err = dispatcher.Execute(context.Background(), Request{DeviceID: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, invoker.calls)
	assert.Empty(t, refresher.invalidated)
}

func TestConfirmationLifecycle(t *testing.T) {
	invoker := &fakeInvoker{result: map[string]any{"output": "ok"}}
	dispatcher, _, _ := newTestDispatcher(invoker)
	req := Request{DeviceID: 1, OperationID: "wipe"}

	outcome, pending, err := dispatcher.Prepare(context.Background(), req, true)
	require.NoError(t, err)
	assert.Nil(t, outcome)
	require.NotNil(t, pending)
	assert.NotEmpty(t, pending.Token)
	assert.Empty(t, invoker.calls)
	assert.Equal(t, 1, dispatcher.PendingCount())

	outcome, err = dispatcher.Confirm(context.Background(), pending.Token)
	require.NoError(t, err)
	assert.Equal(t, "ok", outcome.Display.Body)
	assert.Len(t, invoker.calls, 1)

	_, err = dispatcher.Confirm(context.Background(), pending.Token)
	assert.ErrorIs(t, err, ErrUnknownConfirmation)
}

func TestPrepareWithoutConfirmationExecutes(t *testing.T) {
	invoker := &fakeInvoker{result: map[string]any{"output": "ok"}}
	dispatcher, _, _ := newTestDispatcher(invoker)

	outcome, pending, err := dispatcher.Prepare(context.Background(), Request{DeviceID: 1, OperationID: "ping"}, false)
	require.NoError(t, err)
	assert.Nil(t, pending)
	assert.NotNil(t, outcome)
}

func TestCancelAndExpiry(t *testing.T) {
	invoker := &fakeInvoker{}
	dispatcher, _, _ := newTestDispatcher(invoker)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }

	_, cancelled, err := dispatcher.Prepare(context.Background(), Request{DeviceID: 1, OperationID: "a"}, true)
	require.NoError(t, err)
	require.NoError(t, dispatcher.Cancel(cancelled.Token))
	assert.ErrorIs(t, dispatcher.Cancel(cancelled.Token), ErrUnknownConfirmation)

	_, expiring, err := dispatcher.Prepare(context.Background(), Request{DeviceID: 1, OperationID: "b"}, true)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	_, err = dispatcher.Confirm(context.Background(), expiring.Token)
	assert.ErrorIs(t, err, ErrUnknownConfirmation)
	assert.Empty(t, invoker.calls)
	assert.Zero(t, dispatcher.PendingCount())
}
