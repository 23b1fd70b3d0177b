package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Device status values mirrored from the vendor platform.
const (
	DeviceStatusOnline  = "ONLINE"
	DeviceStatusOffline = "OFFLINE"
	DeviceStatusUnknown = "UNKNOWN"
)

// Device local cache row for one vendor device (devices table).
// device_id is the platform-assigned identity and can change across renames;
// serial_number / dev_eui / imei are the stable hardware identity.
type Device struct {
	DeviceID     string         `db:"device_id"`
	SerialNumber sql.NullString `db:"serial_number"`
	DevEUI       sql.NullString `db:"dev_eui"`
	IMEI         sql.NullString `db:"imei"`

	DeviceName  string         `db:"device_name"`
	Description sql.NullString `db:"description"`
	Tag         sql.NullString `db:"tag"`
	DeviceType  sql.NullString `db:"device_type"`

	LastStatus string       `db:"last_status"` // ONLINE/OFFLINE/UNKNOWN
	LastSyncAt sql.NullTime `db:"last_sync_at"`

	IsCritical          bool `db:"is_critical"`
	CriticalAlertActive bool `db:"critical_alert_active"`

	// Per-device display customization (channel labels, ordering), JSONB.
	DisplayConfig sql.NullString `db:"display_config"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (d *Device) ToJSON() map[string]any {
	m := map[string]any{
		"device_id":             d.DeviceID,
		"device_name":           d.DeviceName,
		"last_status":           d.LastStatus,
		"is_critical":           d.IsCritical,
		"critical_alert_active": d.CriticalAlertActive,
	}
	if d.SerialNumber.Valid {
		m["serial_number"] = d.SerialNumber.String
	}
	if d.DevEUI.Valid {
		m["dev_eui"] = d.DevEUI.String
	}
	if d.IMEI.Valid {
		m["imei"] = d.IMEI.String
	}
	if d.Description.Valid {
		m["description"] = d.Description.String
	}
	if d.Tag.Valid {
		m["tag"] = d.Tag.String
	}
	if d.DeviceType.Valid {
		m["device_type"] = d.DeviceType.String
	}
	if d.LastSyncAt.Valid {
		m["last_sync_at"] = d.LastSyncAt.Time
	}
	if d.DisplayConfig.Valid {
		var v any
		if err := json.Unmarshal([]byte(d.DisplayConfig.String), &v); err == nil {
			m["display_config"] = v
		} else {
			m["display_config"] = d.DisplayConfig.String
		}
	}
	return m
}
