package domain

import (
	"database/sql"
	"time"
)

// Event types attached by the ingestion entry points.
const (
	EventTypeConfigFetch = "CONFIG_FETCH" // console/history polling backfill
)

// Telemetry one ingested reading (telemetry table). Rows are immutable.
// (device_id, event_id) is the dedup key: a second ingest of the same pair
// is a no-op, never an update.
type Telemetry struct {
	ID       int64  `db:"id"` // BIGSERIAL
	DeviceID string `db:"device_id"`
	EventID  string `db:"event_id"`

	EventType string `db:"event_type"`
	DataType  string `db:"data_type"`

	// The reading's own clock in epoch milliseconds, not ingestion time.
	DataTimestamp int64 `db:"data_timestamp"`

	// Raw source payload, JSONB.
	Payload []byte `db:"payload"`

	// Scalar extracts for fast querying/charting.
	Temperature sql.NullFloat64 `db:"temperature"`
	Humidity    sql.NullFloat64 `db:"humidity"`
	Battery     sql.NullInt64   `db:"battery"`

	// Device metadata snapshot at ingestion time, kept even if the cache
	// row is later renamed or migrated.
	DeviceSN     sql.NullString `db:"device_sn"`
	DeviceName   sql.NullString `db:"device_name"`
	DeviceModel  sql.NullString `db:"device_model"`
	DeviceDevEUI sql.NullString `db:"device_dev_eui"`

	CreatedAt time.Time `db:"created_at"`
}

func (t *Telemetry) ToJSON() map[string]any {
	m := map[string]any{
		"id":             t.ID,
		"device_id":      t.DeviceID,
		"event_id":       t.EventID,
		"event_type":     t.EventType,
		"data_type":      t.DataType,
		"data_timestamp": t.DataTimestamp,
		"created_at":     t.CreatedAt,
	}
	if t.Temperature.Valid {
		m["temperature"] = t.Temperature.Float64
	}
	if t.Humidity.Valid {
		m["humidity"] = t.Humidity.Float64
	}
	if t.Battery.Valid {
		m["battery"] = t.Battery.Int64
	}
	if t.DeviceSN.Valid {
		m["device_sn"] = t.DeviceSN.String
	}
	if t.DeviceName.Valid {
		m["device_name"] = t.DeviceName.String
	}
	if t.DeviceModel.Valid {
		m["device_model"] = t.DeviceModel.String
	}
	if t.DeviceDevEUI.Valid {
		m["device_dev_eui"] = t.DeviceDevEUI.String
	}
	return m
}
