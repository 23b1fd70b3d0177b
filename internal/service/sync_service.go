package service

import (
	"context"
	"fmt"
	"time"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/milesight"
	"coldwatch-data/internal/repository"
	"coldwatch-data/internal/store"

	"go.uber.org/zap"
)

// SyncService reconciles the local device cache with the vendor platform
// and proxies admin device actions to it.
type SyncService interface {
	// SyncDevices pulls every device from the platform and upserts the
	// cache. One bad device never aborts the batch.
	SyncDevices(ctx context.Context) (*SyncResult, error)

	TestConnection(ctx context.Context) error
	UpdateDevice(ctx context.Context, deviceID string, payload map[string]any) error
	DeleteDevice(ctx context.Context, deviceID string) error
	TriggerFirmwareUpgrade(ctx context.Context, deviceID string) error
}

// SyncResult outcome of one reconciliation sweep.
type SyncResult struct {
	Total    int
	Created  int
	Updated  int
	Migrated int
	Failed   int
	Errors   []string
}

type syncService struct {
	devicesRepo repository.DevicesRepo
	tokens      *milesight.TokenManager
	client      *milesight.Client
	latest      *store.LatestReadingCache
	logger      *zap.Logger

	pageSize int
	now      func() time.Time
}

func NewSyncService(
	devicesRepo repository.DevicesRepo,
	tokens *milesight.TokenManager,
	client *milesight.Client,
	latest *store.LatestReadingCache,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		devicesRepo: devicesRepo,
		tokens:      tokens,
		client:      client,
		latest:      latest,
		logger:      logger,
		pageSize:    100,
		now:         time.Now,
	}
}

func (s *syncService) SyncDevices(ctx context.Context) (*SyncResult, error) {
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		return nil, err
	}

	syncedAt := s.now()
	result := &SyncResult{}

	for page := 1; ; page++ {
		records, err := s.client.SearchDevices(ctx, sess, page, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("device search failed on page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}

		for i := range records {
			s.syncOne(ctx, &records[i], syncedAt, result)
		}

		if len(records) < s.pageSize {
			break
		}
	}

	s.logger.Info("Device sync complete",
		zap.Int("total", result.Total),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("migrated", result.Migrated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *syncService) syncOne(ctx context.Context, rec *milesight.DeviceRecord, syncedAt time.Time, result *SyncResult) {
	result.Total++

	deviceID := rec.ID()
	if deviceID == "" {
		result.Failed++
		result.Errors = append(result.Errors, "device record without deviceId")
		return
	}

	upsert := repository.DeviceUpsert{
		DeviceID:     deviceID,
		SerialNumber: optional(rec.SN),
		DevEUI:       optional(rec.DevEUI),
		IMEI:         optional(rec.IMEI),
		Name:         rec.Name,
		Description:  optional(rec.Description),
		Tag:          optional(rec.Tag),
		DeviceType:   optional(rec.Model),
		Status:       normalizeStatus(rec.DeviceStatus),
		SyncedAt:     syncedAt,
	}

	res, err := s.devicesRepo.UpsertDevice(ctx, upsert)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", deviceID, err))
		s.logger.Error("Device upsert failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return
	}

	switch {
	case res.Created:
		result.Created++
	case res.Migrated:
		result.Migrated++
		s.logger.Warn("Device identity migrated",
			zap.String("previous_device_id", res.PreviousDeviceID),
			zap.String("device_id", deviceID),
		)
		if s.latest != nil {
			if err := s.latest.Move(ctx, res.PreviousDeviceID, deviceID); err != nil {
				s.logger.Warn("Failed to repoint latest-reading cache",
					zap.String("device_id", deviceID),
					zap.Error(err),
				)
			}
		}
	default:
		result.Updated++
	}
}

func (s *syncService) TestConnection(ctx context.Context) error {
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		return err
	}
	return s.client.TestConnection(ctx, sess)
}

// UpdateDevice pushes the change to the platform first, then patches the
// cache row so the two sides cannot drift on success.
func (s *syncService) UpdateDevice(ctx context.Context, deviceID string, payload map[string]any) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		return err
	}
	if err := s.client.UpdateDevice(ctx, sess, deviceID, payload); err != nil {
		return fmt.Errorf("vendor update failed: %w", err)
	}

	local := map[string]any{}
	if v, ok := payload["name"]; ok {
		local["device_name"] = v
	}
	if v, ok := payload["description"]; ok {
		local["description"] = v
	}
	if v, ok := payload["tag"]; ok {
		local["tag"] = v
	}
	if len(local) == 0 {
		return nil
	}
	if err := s.devicesRepo.UpdateDevice(ctx, deviceID, local); err != nil {
		return fmt.Errorf("cache update failed: %w", err)
	}
	return nil
}

func (s *syncService) DeleteDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		return err
	}
	if err := s.client.DeleteDevice(ctx, sess, deviceID); err != nil {
		return fmt.Errorf("vendor delete failed: %w", err)
	}
	if err := s.devicesRepo.DeleteDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

func (s *syncService) TriggerFirmwareUpgrade(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	sess, err := s.tokens.Session(ctx)
	if err != nil {
		return err
	}
	return s.client.TriggerFirmwareUpgrade(ctx, sess, deviceID)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func normalizeStatus(v string) string {
	switch v {
	case domain.DeviceStatusOnline, domain.DeviceStatusOffline:
		return v
	default:
		return domain.DeviceStatusUnknown
	}
}
