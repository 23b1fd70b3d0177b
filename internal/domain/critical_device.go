package domain

import (
	"database/sql"
	"time"
)

// CriticalDevice one watch-list entry for the offline monitor
// (critical_devices table). Identified by hardware identity, not the
// mutable platform device_id, so entries survive vendor-side renames.
type CriticalDevice struct {
	EntryID      string         `db:"entry_id"`
	Label        string         `db:"label"`
	SerialNumber sql.NullString `db:"serial_number"`
	DevEUI       sql.NullString `db:"dev_eui"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (c *CriticalDevice) ToJSON() map[string]any {
	m := map[string]any{
		"entry_id": c.EntryID,
		"label":    c.Label,
	}
	if c.SerialNumber.Valid {
		m["serial_number"] = c.SerialNumber.String
	}
	if c.DevEUI.Valid {
		m["dev_eui"] = c.DevEUI.String
	}
	return m
}
