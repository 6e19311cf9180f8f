// Package view composes everything the console shows for one device.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"fleetconsole/pkg/catalog"
	"fleetconsole/pkg/models"
	"fleetconsole/pkg/snapshot"
	"fleetconsole/pkg/table"
	"fleetconsole/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// DeviceFetcher loads device records.
type DeviceFetcher interface {
	FetchDevice(ctx context.Context, deviceID int64) (*models.Device, error)
}

// PluginFetcher loads plugin definitions.
type PluginFetcher interface {
	FetchPlugin(ctx context.Context, pluginID int64) (*models.Plugin, error)
}

// SnapshotSource provides the latest telemetry of a device.
type SnapshotSource interface {
	Get(ctx context.Context, deviceID int64, kind snapshot.Kind) (models.Snapshot, error)
}

type PluginInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// DeviceView is the rendered state of one device. PluginError reports a
// fault the plugin returned as data; FetchError reports which telemetry
// fetches failed. Status and metrics render independently of each other.
type DeviceView struct {
	Device       *models.Device           `json:"device"`
	Plugin       *PluginInfo              `json:"plugin,omitempty"`
	Headline     []models.ClassifiedField `json:"headline"`
	SystemInfo   []models.ClassifiedField `json:"system_info"`
	Tables       []table.Table            `json:"tables"`
	Operations   []models.Operation       `json:"operations"`
	QuickActions []models.QuickAction     `json:"quick_actions"`
	PluginError  string                   `json:"plugin_error,omitempty"`
	FetchError   string                   `json:"fetch_error,omitempty"`
}

// Composer builds device views.
type Composer struct {
	devices    DeviceFetcher
	plugins    PluginFetcher
	snapshots  SnapshotSource
	classifier *telemetry.Classifier
	translator telemetry.Translator
}

func NewComposer(devices DeviceFetcher, plugins PluginFetcher, snapshots SnapshotSource, classifier *telemetry.Classifier, translator telemetry.Translator) *Composer {
	return &Composer{
		devices:    devices,
		plugins:    plugins,
		snapshots:  snapshots,
		classifier: classifier,
		translator: translator,
	}
}

// Compose renders deviceID. Only a failure to load the device or its plugin
// is returned as an error; telemetry problems are reported on the view.
func (c *Composer) Compose(ctx context.Context, deviceID int64) (*DeviceView, error) {
	device, err := c.devices.FetchDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load device %d: %w", deviceID, err)
	}

	view := &DeviceView{
		Device:       device,
		Headline:     []models.ClassifiedField{},
		SystemInfo:   []models.ClassifiedField{},
		Tables:       []table.Table{},
		Operations:   []models.Operation{},
		QuickActions: []models.QuickAction{},
	}
	if !device.IsCustom() {
		return view, nil
	}

	plugin, err := c.plugins.FetchPlugin(ctx, device.Custom.PluginID)
	if err != nil {
		return nil, fmt.Errorf("load plugin %d: %w", device.Custom.PluginID, err)
	}
	view.Plugin = &PluginInfo{ID: plugin.ID, Name: plugin.Name, Version: plugin.Version}
	view.Operations = catalog.Extract(plugin)
	view.QuickActions = plugin.UISchema.QuickActions()

	var status, metrics models.Snapshot
	var statusErr, metricsErr error
	var g errgroup.Group
	g.Go(func() error {
		status, statusErr = c.snapshots.Get(ctx, deviceID, snapshot.KindStatus)
		return nil
	})
	g.Go(func() error {
		metrics, metricsErr = c.snapshots.Get(ctx, deviceID, snapshot.KindMetrics)
		return nil
	})
	_ = g.Wait()

	var fetchErrors []string
	classifier := c.classifier.ForPlugin(plugin)
	if statusErr != nil {
		slog.Warn("Failed to fetch status", "component", "View", "device_id", deviceID, "error", statusErr)
		fetchErrors = append(fetchErrors, statusErr.Error())
	} else if message, failed := status.Error(); failed {
		view.PluginError = message
	} else {
		view.SystemInfo = classifier.ClassifySystemInfo(status)
		view.Tables = append(view.Tables, table.BuildAll(status, plugin.UISchema, c.translator)...)
	}

	if metricsErr != nil {
		slog.Warn("Failed to fetch metrics", "component", "View", "device_id", deviceID, "error", metricsErr)
		if !slices.Contains(fetchErrors, metricsErr.Error()) {
			fetchErrors = append(fetchErrors, metricsErr.Error())
		}
	} else if message, failed := metrics.Error(); failed {
		if view.PluginError == "" {
			view.PluginError = message
		}
	} else {
		view.Headline = classifier.Classify(metrics)
		view.Tables = append(view.Tables, dedupe(view.Tables, table.BuildAll(metrics, plugin.UISchema, c.translator))...)
	}
	view.FetchError = strings.Join(fetchErrors, "; ")
	return view, nil
}

func dedupe(existing, candidates []table.Table) []table.Table {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t.Key] = true
	}
	out := candidates[:0]
	for _, t := range candidates {
		if !seen[t.Key] {
			out = append(out, t)
		}
	}
	return out
}
