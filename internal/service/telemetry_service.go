package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/milesight"
	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/store"

	"go.uber.org/zap"
)

// TelemetryService ingests readings from the vendor webhook and from
// history-log polling, with (device_id, event_id) dedup.
type TelemetryService interface {
	IngestWebhook(ctx context.Context, event *WebhookEvent) (*IngestResult, error)
	// IngestLog feeds one history-log entry through the same pipeline,
	// tagged CONFIG_FETCH so backfilled rows are distinguishable.
	IngestLog(ctx context.Context, deviceID string, entry *milesight.LogEntry) (*IngestResult, error)
	// PollLogs backfills recent history for every cached device that has a
	// serial number. Dedup makes re-polling the same window harmless.
	PollLogs(ctx context.Context) (*PollResult, error)

	ListByDevice(ctx context.Context, req ListTelemetryRequest) ([]domain.Telemetry, int, error)
	LatestReadings(ctx context.Context) ([]store.LatestReading, error)
}

// WebhookEvent one push notification from the vendor platform.
type WebhookEvent struct {
	DeviceID  string          `json:"deviceId"`
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	DataType  string          `json:"dataType"`
	Timestamp int64           `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// IngestResult reports what happened to one event.
type IngestResult struct {
	EventID string
	Skipped bool // duplicate (device_id, event_id)
}

// PollResult summary of one backfill sweep.
type PollResult struct {
	Devices  int
	Ingested int
	Skipped  int
	Failed   int
}

type telemetryService struct {
	telemetryRepo repository.TelemetryRepo
	devicesRepo   repository.DevicesRepo
	alerts        AlertService
	latest        *store.LatestReadingCache
	tokens        *milesight.TokenManager
	client        *milesight.Client
	logger        *zap.Logger

	pollLimit int
	now       func() time.Time
}

func NewTelemetryService(
	telemetryRepo repository.TelemetryRepo,
	devicesRepo repository.DevicesRepo,
	alerts AlertService,
	latest *store.LatestReadingCache,
	tokens *milesight.TokenManager,
	client *milesight.Client,
	pollLimit int,
	logger *zap.Logger,
) TelemetryService {
	if pollLimit <= 0 {
		pollLimit = 20
	}
	return &telemetryService{
		telemetryRepo: telemetryRepo,
		devicesRepo:   devicesRepo,
		alerts:        alerts,
		latest:        latest,
		tokens:        tokens,
		client:        client,
		pollLimit:     pollLimit,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *telemetryService) IngestWebhook(ctx context.Context, event *WebhookEvent) (*IngestResult, error) {
	if event.DeviceID == "" {
		return nil, fmt.Errorf("deviceId is required")
	}
	eventType := event.EventType
	if eventType == "" {
		eventType = "DEVICE_DATA"
	}
	return s.ingest(ctx, &incomingReading{
		deviceID:  event.DeviceID,
		eventID:   event.EventID,
		eventType: eventType,
		dataType:  event.DataType,
		timestamp: event.Timestamp,
		data:      event.Data,
	})
}

func (s *telemetryService) IngestLog(ctx context.Context, deviceID string, entry *milesight.LogEntry) (*IngestResult, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("deviceId is required")
	}
	return s.ingest(ctx, &incomingReading{
		deviceID:  deviceID,
		eventID:   entry.ID.String(),
		eventType: domain.EventTypeConfigFetch,
		dataType:  entry.Type,
		timestamp: entry.Timestamp,
		data:      entry.Data,
	})
}

type incomingReading struct {
	deviceID  string
	eventID   string
	eventType string
	dataType  string
	timestamp int64
	data      json.RawMessage
}

func (s *telemetryService) ingest(ctx context.Context, in *incomingReading) (*IngestResult, error) {
	timestamp := in.timestamp
	if timestamp == 0 {
		timestamp = s.now().UnixMilli()
	}

	eventID := in.eventID
	if eventID == "" {
		// Some payloads omit the event id; synthesize a stable one so the
		// dedup key still works across redeliveries. Uses the resolved
		// timestamp so id-less, timestamp-less payloads do not all share
		// one key and get dropped as duplicates of each other.
		eventID = fmt.Sprintf("%s-%d", in.deviceID, timestamp)
	}

	exists, err := s.telemetryRepo.Exists(ctx, in.deviceID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event dedup: %w", err)
	}
	if exists {
		return &IngestResult{EventID: eventID, Skipped: true}, nil
	}

	scalars := extractScalars(in.data)

	row := &domain.Telemetry{
		DeviceID:      in.deviceID,
		EventID:       eventID,
		EventType:     in.eventType,
		DataType:      in.dataType,
		DataTimestamp: timestamp,
		Payload:       in.data,
		Temperature:   scalars.temperature,
		Humidity:      scalars.humidity,
		Battery:       scalars.battery,
	}

	// Snapshot the cache row's metadata. The device may legitimately be
	// unknown (webhook raced ahead of a sync); the reading is stored anyway.
	device, err := s.devicesRepo.GetDevice(ctx, in.deviceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load device for snapshot: %w", err)
	}
	if device != nil {
		row.DeviceSN = device.SerialNumber
		row.DeviceName = sql.NullString{String: device.DeviceName, Valid: device.DeviceName != ""}
		row.DeviceModel = device.DeviceType
		row.DeviceDevEUI = device.DevEUI
	}

	if err := s.telemetryRepo.Insert(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to insert telemetry: %w", err)
	}

	s.updateLatest(ctx, row, device)

	if device != nil {
		for _, reading := range scalars.channelReadings {
			s.alerts.EvaluateReading(ctx, device, reading.channel, reading.value,
				time.UnixMilli(timestamp))
		}
	}

	return &IngestResult{EventID: eventID}, nil
}

func (s *telemetryService) updateLatest(ctx context.Context, row *domain.Telemetry, device *domain.Device) {
	if s.latest == nil {
		return
	}
	reading := &store.LatestReading{
		DeviceID:      row.DeviceID,
		DataTimestamp: row.DataTimestamp,
	}
	if device != nil {
		reading.DeviceName = device.DeviceName
	}
	if row.Temperature.Valid {
		v := row.Temperature.Float64
		reading.Temperature = &v
	}
	if row.Humidity.Valid {
		v := row.Humidity.Float64
		reading.Humidity = &v
	}
	if row.Battery.Valid {
		v := row.Battery.Int64
		reading.Battery = &v
	}
	if err := s.latest.Put(ctx, reading); err != nil {
		s.logger.Warn("Failed to update latest-reading cache",
			zap.String("device_id", row.DeviceID),
			zap.Error(err),
		)
	}
}

func (s *telemetryService) PollLogs(ctx context.Context) (*PollResult, error) {
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		return nil, err
	}

	const pageSize = 200
	var devices []domain.Device
	for page := 1; ; page++ {
		batch, _, err := s.devicesRepo.ListDevices(ctx, map[string]any{"page": page, "size": pageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		devices = append(devices, batch...)
		if len(batch) < pageSize {
			break
		}
	}

	result := &PollResult{}
	for i := range devices {
		device := &devices[i]
		if !device.SerialNumber.Valid || device.SerialNumber.String == "" {
			continue
		}
		result.Devices++

		logs, err := s.client.SearchLogs(ctx, sess, device.SerialNumber.String, s.pollLimit)
		if err != nil {
			result.Failed++
			s.logger.Warn("History poll failed for device",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			continue
		}
		for j := range logs {
			res, err := s.IngestLog(ctx, device.DeviceID, &logs[j])
			if err != nil {
				result.Failed++
				continue
			}
			if res.Skipped {
				result.Skipped++
			} else {
				result.Ingested++
			}
		}
	}

	s.logger.Info("History poll complete",
		zap.Int("devices", result.Devices),
		zap.Int("ingested", result.Ingested),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ListTelemetryRequest query window for one device's readings.
type ListTelemetryRequest struct {
	DeviceID string
	From     *time.Time
	To       *time.Time
	Page     int
	Size     int
}

func (s *telemetryService) ListByDevice(ctx context.Context, req ListTelemetryRequest) ([]domain.Telemetry, int, error) {
	if req.DeviceID == "" {
		return nil, 0, fmt.Errorf("device_id is required")
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.Size
	if size < 1 || size > 1000 {
		size = 100
	}
	return s.telemetryRepo.ListByDevice(ctx, req.DeviceID, req.From, req.To, page, size)
}

func (s *telemetryService) LatestReadings(ctx context.Context) ([]store.LatestReading, error) {
	if s.latest == nil {
		return nil, nil
	}
	return s.latest.All(ctx)
}

// channelReading one temperature value addressed to an alert channel. A nil
// channel is the bare "temperature" field.
type channelReading struct {
	channel *string
	value   float64
}

type extractedScalars struct {
	temperature sql.NullFloat64
	humidity    sql.NullFloat64
	battery     sql.NullInt64

	channelReadings []channelReading
}

// extractScalars pulls queryable scalars out of a raw payload. The primary
// temperature column takes the first present of temperature,
// temperature_left, temperature_right; every present temperature field also
// becomes a channel reading for alert evaluation.
func extractScalars(raw json.RawMessage) extractedScalars {
	var out extractedScalars
	if len(raw) == 0 {
		return out
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return out
	}

	if v, ok := numberField(data, "temperature"); ok {
		out.channelReadings = append(out.channelReadings, channelReading{channel: nil, value: v})
		out.temperature = sql.NullFloat64{Float64: v, Valid: true}
	}
	for _, side := range []string{"left", "right"} {
		if v, ok := numberField(data, "temperature_"+side); ok {
			ch := side
			out.channelReadings = append(out.channelReadings, channelReading{channel: &ch, value: v})
			if !out.temperature.Valid {
				out.temperature = sql.NullFloat64{Float64: v, Valid: true}
			}
		}
	}

	if v, ok := numberField(data, "humidity"); ok {
		out.humidity = sql.NullFloat64{Float64: v, Valid: true}
	}

	if v, ok := numberField(data, "battery"); ok {
		out.battery = sql.NullInt64{Int64: int64(math.Round(v)), Valid: true}
	} else if v, ok := numberField(data, "battery_level"); ok {
		out.battery = sql.NullInt64{Int64: int64(math.Round(v)), Valid: true}
	}

	return out
}

func numberField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
