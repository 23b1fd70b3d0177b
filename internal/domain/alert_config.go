package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// DefaultAlertCooldownSeconds suppression window between repeat alerts for
// one (device, channel) configuration.
const DefaultAlertCooldownSeconds = 300

// AlertRecipient one notification target of a threshold configuration.
type AlertRecipient struct {
	Email   string `json:"email"`
	Enabled bool   `json:"enabled"`
}

// TemperatureAlertConfig per-device threshold configuration
// (temperature_alert_configs table). sensor_channel NULL means "the device's
// single sensor"; a NULL-channel config and a named-channel config for the
// same device are independent rows found via different query shapes.
type TemperatureAlertConfig struct {
	ConfigID      string         `db:"config_id"`
	DeviceID      string         `db:"device_id"`
	SensorChannel sql.NullString `db:"sensor_channel"`

	MinTemperature float64 `db:"min_temperature"`
	MaxTemperature float64 `db:"max_temperature"`

	// JSON array of AlertRecipient.
	Recipients string `db:"recipients"`

	Enabled         bool         `db:"enabled"`
	CooldownSeconds int          `db:"cooldown_seconds"`
	LastAlertAt     sql.NullTime `db:"last_alert_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ParseRecipients decodes the recipients JSON column. A broken column is
// treated as an empty list rather than an error.
func (c *TemperatureAlertConfig) ParseRecipients() []AlertRecipient {
	var out []AlertRecipient
	if c.Recipients == "" {
		return out
	}
	if err := json.Unmarshal([]byte(c.Recipients), &out); err != nil {
		return nil
	}
	return out
}

// EnabledEmails returns the addresses currently opted in.
func (c *TemperatureAlertConfig) EnabledEmails() []string {
	var out []string
	for _, r := range c.ParseRecipients() {
		if r.Enabled && r.Email != "" {
			out = append(out, r.Email)
		}
	}
	return out
}

// InCooldown reports whether a breach at the given time falls inside the
// suppression window of the last sent alert.
func (c *TemperatureAlertConfig) InCooldown(now time.Time) bool {
	if !c.LastAlertAt.Valid {
		return false
	}
	cooldown := c.CooldownSeconds
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldownSeconds
	}
	return now.Sub(c.LastAlertAt.Time) < time.Duration(cooldown)*time.Second
}

// Breaches reports whether the reading violates the configured band.
func (c *TemperatureAlertConfig) Breaches(temperature float64) bool {
	return temperature < c.MinTemperature || temperature > c.MaxTemperature
}

func (c *TemperatureAlertConfig) ToJSON() map[string]any {
	m := map[string]any{
		"config_id":        c.ConfigID,
		"device_id":        c.DeviceID,
		"min_temperature":  c.MinTemperature,
		"max_temperature":  c.MaxTemperature,
		"enabled":          c.Enabled,
		"cooldown_seconds": c.CooldownSeconds,
		"recipients":       c.ParseRecipients(),
	}
	if c.SensorChannel.Valid {
		m["sensor_channel"] = c.SensorChannel.String
	} else {
		m["sensor_channel"] = nil
	}
	if c.LastAlertAt.Valid {
		m["last_alert_at"] = c.LastAlertAt.Time
	}
	return m
}

// DisabledDiff returns the emails enabled in prev but no longer enabled in
// next. Used at save time to send one-time unsubscribe notices.
func DisabledDiff(prev, next []AlertRecipient) []string {
	enabledNext := map[string]bool{}
	for _, r := range next {
		if r.Enabled {
			enabledNext[r.Email] = true
		}
	}
	var out []string
	seen := map[string]bool{}
	for _, r := range prev {
		if r.Enabled && r.Email != "" && !enabledNext[r.Email] && !seen[r.Email] {
			out = append(out, r.Email)
			seen[r.Email] = true
		}
	}
	return out
}
