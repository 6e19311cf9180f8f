package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DeviceType discriminates the populated device variant.
type DeviceType string

const (
	DeviceTypeStandard DeviceType = "standard"
	DeviceTypeCustom   DeviceType = "custom"
)

// ErrInvalidVariant is returned when a device does not populate exactly one
// variant matching its type.
var ErrInvalidVariant = errors.New("device must populate exactly one variant matching its type")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Device is a managed host. Exactly one of Standard or Custom is populated.
type Device struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name" validate:"required"`
	IPAddress   string          `json:"ip_address" validate:"omitempty,ip|hostname"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"is_active"`
	Type        DeviceType      `json:"type" validate:"required,oneof=standard custom"`
	Standard    *StandardDevice `json:"standard_device,omitempty"`
	Custom      *CustomDevice   `json:"custom_device,omitempty"`
}

// StandardDevice is a host monitored through the fixed metrics schema.
type StandardDevice struct {
	OSType   string `json:"os_type" validate:"required,oneof=windows macos linux"`
	Hostname string `json:"hostname" validate:"required"`
}

// CustomDevice is a device whose shape and operations are defined by a plugin.
type CustomDevice struct {
	PluginID         int64          `json:"plugin_id" validate:"required"`
	PluginName       string         `json:"plugin_name,omitempty"`
	ConnectionParams map[string]any `json:"connection_params"`
}

// Validate checks field constraints and the single-variant invariant.
func (d *Device) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("device %d: %w", d.ID, err)
	}

	switch {
	case d.Standard != nil && d.Custom != nil:
		return fmt.Errorf("device %d: %w", d.ID, ErrInvalidVariant)
	case d.Type == DeviceTypeStandard && d.Standard == nil:
		return fmt.Errorf("device %d: %w", d.ID, ErrInvalidVariant)
	case d.Type == DeviceTypeCustom && d.Custom == nil:
		return fmt.Errorf("device %d: %w", d.ID, ErrInvalidVariant)
	}
	return nil
}

// IsCustom reports whether the device is plugin-driven.
func (d *Device) IsCustom() bool {
	return d.Type == DeviceTypeCustom && d.Custom != nil
}

// ConnectionParams returns the stored connection parameters of a custom
// device, or nil for a standard one.
func (d *Device) ConnectionParams() map[string]any {
	if !d.IsCustom() {
		return nil
	}
	return d.Custom.ConnectionParams
}
