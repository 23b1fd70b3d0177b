package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	latestKeyPrefix = "coldwatch:latest:"
	latestTTL       = 24 * time.Hour
)

// LatestReading is the hot snapshot of a device's most recent telemetry,
// served from Redis so dashboard reads stay off the telemetry table.
type LatestReading struct {
	DeviceID      string   `json:"device_id"`
	DeviceName    string   `json:"device_name"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Battery       *int64   `json:"battery,omitempty"`
	DataTimestamp int64    `json:"data_timestamp"`
}

// LatestReadingCache keeps one LatestReading per device.
type LatestReadingCache struct {
	kv KV
}

func NewLatestReadingCache(kv KV) *LatestReadingCache {
	return &LatestReadingCache{kv: kv}
}

func (c *LatestReadingCache) Put(ctx context.Context, reading *LatestReading) error {
	if reading.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	raw, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to encode latest reading: %w", err)
	}
	return c.kv.Set(ctx, latestKeyPrefix+reading.DeviceID, string(raw), latestTTL)
}

func (c *LatestReadingCache) Get(ctx context.Context, deviceID string) (*LatestReading, error) {
	raw, err := c.kv.Get(ctx, latestKeyPrefix+deviceID)
	if err != nil {
		return nil, err
	}
	var reading LatestReading
	if err := json.Unmarshal([]byte(raw), &reading); err != nil {
		return nil, fmt.Errorf("failed to decode latest reading: %w", err)
	}
	return &reading, nil
}

// Move repoints a cached reading after a device identity migration so the
// first read under the new id does not miss.
func (c *LatestReadingCache) Move(ctx context.Context, oldDeviceID, newDeviceID string) error {
	raw, err := c.kv.Get(ctx, latestKeyPrefix+oldDeviceID)
	if err != nil {
		if err == ErrMiss {
			return nil
		}
		return err
	}
	var reading LatestReading
	if err := json.Unmarshal([]byte(raw), &reading); err != nil {
		return fmt.Errorf("failed to decode latest reading: %w", err)
	}
	reading.DeviceID = newDeviceID
	if err := c.Put(ctx, &reading); err != nil {
		return err
	}
	return c.kv.Delete(ctx, latestKeyPrefix+oldDeviceID)
}

// All returns every cached reading. Used by the dashboard list endpoint.
func (c *LatestReadingCache) All(ctx context.Context) ([]LatestReading, error) {
	keys, err := c.kv.ScanKeys(ctx, latestKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	readings := make([]LatestReading, 0, len(keys))
	for _, key := range keys {
		raw, err := c.kv.Get(ctx, key)
		if err != nil {
			if err == ErrMiss {
				continue
			}
			return nil, err
		}
		var reading LatestReading
		if err := json.Unmarshal([]byte(raw), &reading); err != nil {
			// Drop unreadable entries instead of failing the whole list.
			continue
		}
		if reading.DeviceID == "" {
			reading.DeviceID = strings.TrimPrefix(key, latestKeyPrefix)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}
