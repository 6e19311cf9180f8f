// Package backend talks to the device and plugin REST service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleetconsole/pkg/models"
)

// ErrNotFound matches a StatusError carrying 404.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client is an HTTP client for the backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchDevice loads and validates a device record.
func (c *Client) FetchDevice(ctx context.Context, deviceID int64) (*models.Device, error) {
	var device models.Device
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/devices/%d", deviceID), nil, &device); err != nil {
		return nil, err
	}
	if err := device.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device from backend: %w", err)
	}
	return &device, nil
}

// FetchPlugin loads a plugin definition.
func (c *Client) FetchPlugin(ctx context.Context, pluginID int64) (*models.Plugin, error) {
	var plugin models.Plugin
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/plugins/%d", pluginID), nil, &plugin); err != nil {
		return nil, err
	}
	return &plugin, nil
}

// FetchDeviceStatus loads the latest status snapshot of a custom device.
func (c *Client) FetchDeviceStatus(ctx context.Context, deviceID int64) (models.Snapshot, error) {
	var snapshot models.Snapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/custom/%d/status", deviceID), nil, &snapshot)
	return snapshot, err
}

// FetchDeviceMetrics loads the latest metrics snapshot of a custom device.
func (c *Client) FetchDeviceMetrics(ctx context.Context, deviceID int64) (models.Snapshot, error) {
	var snapshot models.Snapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/custom/%d/metrics", deviceID), nil, &snapshot)
	return snapshot, err
}

// InvokeOperation runs an operation with the given parameters and returns
// the raw result.
func (c *Client) InvokeOperation(ctx context.Context, deviceID int64, operationID string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	path := fmt.Sprintf("/custom/%d/operations/%s", deviceID, url.PathEscape(operationID))

	var result map[string]any
	if err := c.do(ctx, http.MethodPost, path, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type availabilityResponse struct {
	IsAvailable bool `json:"is_available"`
}

// CheckAvailability asks the backend to probe a device.
func (c *Client) CheckAvailability(ctx context.Context, deviceID int64) (bool, error) {
	var resp availabilityResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/availability/%d/check", deviceID), nil, &resp); err != nil {
		return false, err
	}
	return resp.IsAvailable, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("Backend request failed", "component", "Backend", "method", method, "path", path, "status", resp.StatusCode)
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

const maxBodySize = 16 << 20

// errorMessage extracts a readable message from an error body, accepting the
// common {"detail": ...}, {"error": ...} and {"message": ...} shapes.
func errorMessage(data []byte) string {
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			switch v := envelope[key].(type) {
			case string:
				return v
			case map[string]any:
				if message, ok := v["message"].(string); ok {
					return message
				}
			}
		}
	}
	return strings.TrimSpace(string(data))
}
