package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/milesight"
	"coldwatch-data/internal/repository"
)

// unconfiguredAuthRepo makes the vendor session unavailable so backfill is
// skipped in tests that only exercise the staleness logic.
type unconfiguredAuthRepo struct{}

func (unconfiguredAuthRepo) Get(ctx context.Context) (*domain.AuthSettings, error) {
	return nil, repository.ErrNotFound
}

func (unconfiguredAuthRepo) Upsert(ctx context.Context, payload map[string]any) (*domain.AuthSettings, error) {
	return nil, repository.ErrNotFound
}

func (unconfiguredAuthRepo) UpdateTokens(ctx context.Context, accessToken string, refreshToken *string, expiresAt time.Time) error {
	return nil
}

func monitorNow() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func watchEntry(sn string) domain.CriticalDevice {
	return domain.CriticalDevice{
		EntryID:      "entry-1",
		Label:        "Vaccine fridge",
		SerialNumber: sql.NullString{String: sn, Valid: sn != ""},
	}
}

func newTestMonitorService(
	critical *fakeCriticalDevicesRepo,
	devices *fakeDevicesRepo,
	telemetry *fakeTelemetryRepo,
	sender *captureSender,
) *monitorService {
	logger := zap.NewNop()
	tokens := milesight.NewTokenManager(unconfiguredAuthRepo{}, milesight.NewClient(logger), logger)
	s := NewMonitorService(
		critical, devices, telemetry,
		tokens, milesight.NewClient(logger),
		newTestTelemetryService(telemetry, devices, &recordingAlerts{}),
		sender,
		[]string{"ops@example.com"},
		10*time.Minute, 20,
		logger,
	).(*monitorService)
	s.now = monitorNow
	return s
}

func addReading(telemetry *fakeTelemetryRepo, deviceID string, at time.Time) {
	telemetry.rows = append(telemetry.rows, &domain.Telemetry{
		DeviceID:      deviceID,
		EventID:       "evt-" + at.Format("150405"),
		DataTimestamp: at.UnixMilli(),
	})
}

func TestCheckCriticalDevices_FreshDeviceIsQuiet(t *testing.T) {
	device := cachedDevice()
	telemetry := newFakeTelemetryRepo()
	addReading(telemetry, device.DeviceID, monitorNow().Add(-2*time.Minute))
	sender := &captureSender{}
	s := newTestMonitorService(
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{watchEntry("SN-1")}},
		newFakeDevicesRepo(device), telemetry, sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Zero(t, report.Stale)
	assert.Empty(t, sender.messages)
}

func TestCheckCriticalDevices_StaleDeviceAlertsOnce(t *testing.T) {
	device := cachedDevice()
	telemetry := newFakeTelemetryRepo()
	addReading(telemetry, device.DeviceID, monitorNow().Add(-30*time.Minute))
	sender := &captureSender{}
	devices := newFakeDevicesRepo(device)
	s := newTestMonitorService(
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{watchEntry("SN-1")}},
		devices, telemetry, sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerted)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].Subject, "Device offline")
	assert.True(t, devices.criticalActive[device.DeviceID])

	// Second sweep while still offline must stay silent.
	report, err = s.CheckCriticalDevices(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Alerted)
	assert.Len(t, sender.messages, 1)
}

func TestCheckCriticalDevices_NeverReportedIsStale(t *testing.T) {
	device := cachedDevice()
	sender := &captureSender{}
	s := newTestMonitorService(
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{watchEntry("SN-1")}},
		newFakeDevicesRepo(device), newFakeTelemetryRepo(), sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].Body, "No telemetry has ever been received")
}

func TestCheckCriticalDevices_RecoveryClearsFlagQuietly(t *testing.T) {
	device := cachedDevice()
	device.CriticalAlertActive = true
	telemetry := newFakeTelemetryRepo()
	addReading(telemetry, device.DeviceID, monitorNow().Add(-1*time.Minute))
	sender := &captureSender{}
	devices := newFakeDevicesRepo(device)
	s := newTestMonitorService(
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{watchEntry("SN-1")}},
		devices, telemetry, sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Recovered)
	assert.Empty(t, sender.messages, "recovery must not email, it only clears the episode flag")
	assert.False(t, devices.criticalActive[device.DeviceID])
}

// newVendorBackedMonitorService wires the monitor against an httptest vendor
// API so backfill actually runs. Captures the log-search request body.
func newVendorBackedMonitorService(
	t *testing.T,
	logJSON string,
	capturedSN *string,
	critical *fakeCriticalDevicesRepo,
	devices *fakeDevicesRepo,
	telemetry *fakeTelemetryRepo,
	sender *captureSender,
) *monitorService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if sn, ok := body["sn"].(string); ok {
			*capturedSN = sn
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(logJSON))
	}))
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	tokens := milesight.NewTokenManager(configuredAuthRepo{baseURL: srv.URL}, milesight.NewClient(logger), logger)
	s := NewMonitorService(
		critical, devices, telemetry,
		tokens, milesight.NewClient(logger),
		newTestTelemetryService(telemetry, devices, &recordingAlerts{}),
		sender,
		[]string{"ops@example.com"},
		10*time.Minute, 20,
		logger,
	).(*monitorService)
	s.now = monitorNow
	return s
}

func TestCheckCriticalDevices_AlertGoesOutBeforeBackfill(t *testing.T) {
	device := cachedDevice()
	telemetry := newFakeTelemetryRepo()
	addReading(telemetry, device.DeviceID, monitorNow().Add(-30*time.Minute))
	sender := &captureSender{}
	devices := newFakeDevicesRepo(device)
	var capturedSN string

	// The console holds a fresh entry the webhook never delivered.
	freshTS := monitorNow().Add(-1 * time.Minute).UnixMilli()
	logJSON := fmt.Sprintf(
		`{"data":{"list":[{"id":9001,"type":"TELEMETRY","ts":%d,"data":{"temperature":4.2}}]}}`,
		freshTS)

	s := newVendorBackedMonitorService(t, logJSON, &capturedSN,
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{watchEntry("SN-1")}},
		devices, telemetry, sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)
	assert.Equal(t, 1, report.Alerted, "crossing the threshold must alert even when backfill recovers data")
	assert.Equal(t, 1, report.Backfilled)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].Subject, "Device offline")
	assert.True(t, devices.criticalActive[device.DeviceID])

	// Next sweep sees the backfilled reading and quietly clears the episode.
	report, err = s.CheckCriticalDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recovered)
	assert.Len(t, sender.messages, 1)
}

func TestCheckCriticalDevices_BackfillFallsBackToDevEUI(t *testing.T) {
	device := cachedDevice()
	device.SerialNumber = sql.NullString{}
	telemetry := newFakeTelemetryRepo()
	addReading(telemetry, device.DeviceID, monitorNow().Add(-30*time.Minute))
	sender := &captureSender{}
	var capturedSN string

	entry := domain.CriticalDevice{
		EntryID: "entry-1",
		Label:   "Vaccine fridge",
		DevEUI:  sql.NullString{String: "EUI-1", Valid: true},
	}
	s := newVendorBackedMonitorService(t, `{"data":{"list":[]}}`, &capturedSN,
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{entry}},
		newFakeDevicesRepo(device), telemetry, sender,
	)

	_, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "EUI-1", capturedSN, "log search must key on the DevEUI when no serial number exists")
}

func TestCheckCriticalDevices_UnknownHardwareIsConfigError(t *testing.T) {
	sender := &captureSender{}
	s := newTestMonitorService(
		&fakeCriticalDevicesRepo{entries: []domain.CriticalDevice{watchEntry("SN-unknown")}},
		newFakeDevicesRepo(), newFakeTelemetryRepo(), sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "no cached device matches")
	assert.Empty(t, sender.messages)
}

func TestCheckCriticalDevices_OneBadEntryDoesNotStopSweep(t *testing.T) {
	good := cachedDevice()
	telemetry := newFakeTelemetryRepo()
	addReading(telemetry, good.DeviceID, monitorNow().Add(-1*time.Minute))
	sender := &captureSender{}
	entries := []domain.CriticalDevice{
		{EntryID: "e-1", Label: "Missing", SerialNumber: sql.NullString{String: "SN-gone", Valid: true}},
		watchEntry("SN-1"),
	}
	s := newTestMonitorService(
		&fakeCriticalDevicesRepo{entries: entries},
		newFakeDevicesRepo(good), telemetry, sender,
	)

	report, err := s.CheckCriticalDevices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Len(t, report.Errors, 1)
}

func TestAddToWatchList_Validation(t *testing.T) {
	s := newTestMonitorService(&fakeCriticalDevicesRepo{}, newFakeDevicesRepo(), newFakeTelemetryRepo(), &captureSender{})

	err := s.AddToWatchList(context.Background(), &domain.CriticalDevice{Label: "No hardware"})
	assert.Error(t, err)

	err = s.AddToWatchList(context.Background(), &domain.CriticalDevice{
		SerialNumber: sql.NullString{String: "SN-1", Valid: true},
	})
	assert.Error(t, err)

	err = s.AddToWatchList(context.Background(), &domain.CriticalDevice{
		Label:        "Fridge",
		SerialNumber: sql.NullString{String: "SN-1", Valid: true},
	})
	assert.NoError(t, err)
}
