package api

import (
	"context"
	"net/http"
	"strconv"

	"fleetconsole/pkg/availability"
	"fleetconsole/pkg/catalog"
	"fleetconsole/pkg/dispatch"
	"fleetconsole/pkg/models"
	"fleetconsole/pkg/view"

	"github.com/gin-gonic/gin"
)

// DeviceFetcher loads device records
type DeviceFetcher interface {
	FetchDevice(ctx context.Context, deviceID int64) (*models.Device, error)
}

// PluginFetcher loads plugin definitions
type PluginFetcher interface {
	FetchPlugin(ctx context.Context, pluginID int64) (*models.Plugin, error)
}

// ViewComposer renders a device view
type ViewComposer interface {
	Compose(ctx context.Context, deviceID int64) (*view.DeviceView, error)
}

// Dispatcher runs operations, optionally behind a confirmation step
type Dispatcher interface {
	Prepare(ctx context.Context, req dispatch.Request, requireConfirm bool) (*dispatch.Outcome, *dispatch.Pending, error)
	Confirm(ctx context.Context, token string) (*dispatch.Outcome, error)
	Cancel(token string) error
}

// SessionRegistry tracks console sessions and their availability watchers
type SessionRegistry interface {
	Open() string
	Get(id string) (*availability.Watcher, error)
	Close(id string) error
}

// HistoryReader lists recorded executions. It is nil when history is disabled.
type HistoryReader interface {
	Executions(ctx context.Context, deviceID int64, limit int) ([]*models.ExecutionRecord, error)
}

// Handler serves the console API
type Handler struct {
	devices    DeviceFetcher
	plugins    PluginFetcher
	composer   ViewComposer
	dispatcher Dispatcher
	sessions   SessionRegistry
	history    HistoryReader
}

// NewHandler creates a handler. history may be nil.
func NewHandler(devices DeviceFetcher, plugins PluginFetcher, composer ViewComposer, dispatcher Dispatcher, sessions SessionRegistry, history HistoryReader) *Handler {
	return &Handler{
		devices:    devices,
		plugins:    plugins,
		composer:   composer,
		dispatcher: dispatcher,
		sessions:   sessions,
		history:    history,
	}
}

// DeviceView returns the composed view of a device
func (h *Handler) DeviceView(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	deviceView, err := h.composer.Compose(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, deviceView)
}

// PluginOperations returns the operation catalog of a plugin
func (h *Handler) PluginOperations(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	plugin, err := h.plugins.FetchPlugin(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plugin_id": plugin.ID, "operations": catalog.Extract(plugin)})
}

// ExecuteRequest is the body of an operation dispatch
type ExecuteRequest struct {
	Params  map[string]any `json:"params"`
	Row     map[string]any `json:"row"`
	Confirm bool           `json:"confirm"`
}

// ExecuteOperation dispatches an operation, or parks it when it needs confirmation
func (h *Handler) ExecuteOperation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body ExecuteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	operationID := c.Param("op")
	requireConfirm := body.Confirm
	if !requireConfirm {
		declared, err := h.declaresConfirmation(ctx, id, operationID)
		if err != nil {
			respondErr(c, err)
			return
		}
		requireConfirm = declared
	}

	outcome, pending, err := h.dispatcher.Prepare(ctx, dispatch.Request{
		DeviceID:    id,
		OperationID: operationID,
		Row:         body.Row,
		Params:      body.Params,
	}, requireConfirm)
	if err != nil {
		respondErr(c, err)
		return
	}
	if pending != nil {
		c.JSON(http.StatusAccepted, pending)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) declaresConfirmation(ctx context.Context, deviceID int64, operationID string) (bool, error) {
	device, err := h.devices.FetchDevice(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if !device.IsCustom() {
		return false, nil
	}
	plugin, err := h.plugins.FetchPlugin(ctx, device.Custom.PluginID)
	if err != nil {
		return false, err
	}
	return catalog.RequiresConfirmation(plugin, operationID), nil
}

// ConfirmOperation executes a parked operation
func (h *Handler) ConfirmOperation(c *gin.Context) {
	outcome, err := h.dispatcher.Confirm(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// CancelOperation discards a parked operation
func (h *Handler) CancelOperation(c *gin.Context) {
	if err := h.dispatcher.Cancel(c.Param("token")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeviceExecutions lists the recorded executions of a device
func (h *Handler) DeviceExecutions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if h.history == nil {
		respondError(c, http.StatusNotFound, "execution history is disabled")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		respondError(c, http.StatusBadRequest, "invalid limit")
		return
	}

	records, err := h.history.Executions(c.Request.Context(), id, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// OpenSession starts a console session
func (h *Handler) OpenSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"session_id": h.sessions.Open()})
}

// CloseSession ends a console session and stops its availability polling
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("sid")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EnterDevice starts availability polling of a device for the session
func (h *Handler) EnterDevice(c *gin.Context) {
	watcher, id, ok := h.sessionDevice(c)
	if !ok {
		return
	}
	if err := watcher.Enter(id); err != nil {
		respondErr(c, err)
		return
	}
	state, _ := watcher.State(id)
	c.JSON(http.StatusOK, state)
}

// LeaveDevice stops availability polling of a device for the session
func (h *Handler) LeaveDevice(c *gin.Context) {
	watcher, id, ok := h.sessionDevice(c)
	if !ok {
		return
	}
	if !watcher.Leave(id) {
		respondError(c, http.StatusNotFound, "device is not being watched")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeviceAvailability returns the availability of a watched device
func (h *Handler) DeviceAvailability(c *gin.Context) {
	watcher, id, ok := h.sessionDevice(c)
	if !ok {
		return
	}
	state, watched := watcher.State(id)
	if !watched {
		respondError(c, http.StatusNotFound, "device is not being watched")
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) sessionDevice(c *gin.Context) (*availability.Watcher, int64, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, 0, false
	}
	watcher, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		respondErr(c, err)
		return nil, 0, false
	}
	return watcher, id, true
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
