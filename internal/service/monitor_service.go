package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/milesight"
	"coldwatch-data/internal/notify"
	"coldwatch-data/internal/repository"

	"go.uber.org/zap"
)

// MonitorService watches the critical-device list and raises offline
// notices to operations. Recovery is silent, only the episode flag clears.
type MonitorService interface {
	// CheckCriticalDevices runs one monitoring sweep. Errors on one entry
	// never stop the sweep; the returned report carries them.
	CheckCriticalDevices(ctx context.Context) (*MonitorReport, error)

	ListWatchList(ctx context.Context) ([]domain.CriticalDevice, error)
	AddToWatchList(ctx context.Context, entry *domain.CriticalDevice) error
	RemoveFromWatchList(ctx context.Context, entryID string) error
}

// MonitorReport outcome of one sweep over the watch list.
type MonitorReport struct {
	Checked    int
	Stale      int
	Alerted    int
	Recovered  int
	Backfilled int
	Errors     []string
}

type monitorService struct {
	criticalRepo  repository.CriticalDevicesRepo
	devicesRepo   repository.DevicesRepo
	telemetryRepo repository.TelemetryRepo
	tokens        *milesight.TokenManager
	client        *milesight.Client
	ingestor      TelemetryService
	sender        notify.Sender
	logger        *zap.Logger

	opsRecipients    []string
	offlineThreshold time.Duration
	backfillLimit    int
	now              func() time.Time
}

func NewMonitorService(
	criticalRepo repository.CriticalDevicesRepo,
	devicesRepo repository.DevicesRepo,
	telemetryRepo repository.TelemetryRepo,
	tokens *milesight.TokenManager,
	client *milesight.Client,
	ingestor TelemetryService,
	sender notify.Sender,
	opsRecipients []string,
	offlineThreshold time.Duration,
	backfillLimit int,
	logger *zap.Logger,
) MonitorService {
	if offlineThreshold <= 0 {
		offlineThreshold = 10 * time.Minute
	}
	if backfillLimit <= 0 {
		backfillLimit = 20
	}
	return &monitorService{
		criticalRepo:     criticalRepo,
		devicesRepo:      devicesRepo,
		telemetryRepo:    telemetryRepo,
		tokens:           tokens,
		client:           client,
		ingestor:         ingestor,
		sender:           sender,
		opsRecipients:    opsRecipients,
		offlineThreshold: offlineThreshold,
		backfillLimit:    backfillLimit,
		logger:           logger,
		now:              time.Now,
	}
}

func (s *monitorService) CheckCriticalDevices(ctx context.Context) (*MonitorReport, error) {
	entries, err := s.criticalRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch list: %w", err)
	}

	report := &MonitorReport{}
	for i := range entries {
		if err := s.checkOne(ctx, &entries[i], report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", entries[i].Label, err))
			s.logger.Error("Critical device check failed",
				zap.String("label", entries[i].Label),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Critical device sweep complete",
		zap.Int("checked", report.Checked),
		zap.Int("stale", report.Stale),
		zap.Int("alerted", report.Alerted),
		zap.Int("recovered", report.Recovered),
	)
	return report, nil
}

func (s *monitorService) checkOne(ctx context.Context, entry *domain.CriticalDevice, report *MonitorReport) error {
	report.Checked++

	var sn, eui *string
	if entry.SerialNumber.Valid && entry.SerialNumber.String != "" {
		sn = &entry.SerialNumber.String
	}
	if entry.DevEUI.Valid && entry.DevEUI.String != "" {
		eui = &entry.DevEUI.String
	}

	device, err := s.devicesRepo.GetDeviceByHardware(ctx, sn, eui)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Watch-list entry names hardware the cache has never seen.
			// That is a configuration problem, not an offline device.
			return fmt.Errorf("no cached device matches this watch-list entry")
		}
		return err
	}

	lastSeen, stale := s.staleness(ctx, device)
	if stale {
		report.Stale++

		// Alert on the transition into staleness, once per episode. The
		// alert goes out before any backfill attempt: a device that
		// crossed the threshold is offline from the watcher's point of
		// view even if the console still holds readings we never got.
		if !device.CriticalAlertActive {
			if len(s.opsRecipients) > 0 {
				msg := notify.DeviceOffline(s.opsRecipients, entry.Label, device.DeviceName,
					device.DeviceID, lastSeen, s.offlineThreshold)
				if err := s.sender.Send(msg); err != nil {
					return fmt.Errorf("failed to send offline notice: %w", err)
				}
			}
			if err := s.devicesRepo.SetCriticalAlertActive(ctx, device.DeviceID, true); err != nil {
				return fmt.Errorf("failed to mark alert active: %w", err)
			}
			report.Alerted++
		}

		// Recover whatever history a lost webhook delivery dropped.
		if n := s.backfill(ctx, device); n > 0 {
			report.Backfilled += n
		}
		return nil
	}

	if device.CriticalAlertActive {
		// Fresh data again. Clear the episode flag quietly; there is no
		// all-clear email, operations sees recovery on the dashboard.
		if err := s.devicesRepo.SetCriticalAlertActive(ctx, device.DeviceID, false); err != nil {
			return fmt.Errorf("failed to clear alert flag: %w", err)
		}
		report.Recovered++
	}
	return nil
}

// staleness returns the device's last reading time and whether it exceeds
// the offline threshold. A device with no telemetry at all is stale.
func (s *monitorService) staleness(ctx context.Context, device *domain.Device) (time.Time, bool) {
	latest, err := s.telemetryRepo.Latest(ctx, device.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, true
		}
		s.logger.Error("Failed to load latest telemetry",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return time.Time{}, true
	}
	lastSeen := time.UnixMilli(latest.DataTimestamp)
	return lastSeen, s.now().Sub(lastSeen) >= s.offlineThreshold
}

// backfill pulls recent history logs for the device and runs them through
// the ingest pipeline. Returns the number of new rows stored.
func (s *monitorService) backfill(ctx context.Context, device *domain.Device) int {
	hardwareID := ""
	if device.SerialNumber.Valid && device.SerialNumber.String != "" {
		hardwareID = device.SerialNumber.String
	} else if device.DevEUI.Valid && device.DevEUI.String != "" {
		hardwareID = device.DevEUI.String
	}
	if hardwareID == "" {
		return 0
	}
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		s.logger.Warn("Backfill skipped, no vendor session",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return 0
	}
	logs, err := s.client.SearchLogs(ctx, sess, hardwareID, s.backfillLimit)
	if err != nil {
		s.logger.Warn("Backfill log search failed",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return 0
	}

	ingested := 0
	for i := range logs {
		res, err := s.ingestor.IngestLog(ctx, device.DeviceID, &logs[i])
		if err != nil {
			s.logger.Warn("Backfill ingest failed",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			continue
		}
		if !res.Skipped {
			ingested++
		}
	}
	return ingested
}

func (s *monitorService) ListWatchList(ctx context.Context) ([]domain.CriticalDevice, error) {
	return s.criticalRepo.List(ctx)
}

func (s *monitorService) AddToWatchList(ctx context.Context, entry *domain.CriticalDevice) error {
	if entry.Label == "" {
		return fmt.Errorf("label is required")
	}
	hasSN := entry.SerialNumber.Valid && entry.SerialNumber.String != ""
	hasEUI := entry.DevEUI.Valid && entry.DevEUI.String != ""
	if !hasSN && !hasEUI {
		return fmt.Errorf("serial_number or dev_eui is required")
	}
	return s.criticalRepo.Create(ctx, entry)
}

func (s *monitorService) RemoveFromWatchList(ctx context.Context, entryID string) error {
	if entryID == "" {
		return fmt.Errorf("entry_id is required")
	}
	return s.criticalRepo.Delete(ctx, entryID)
}
