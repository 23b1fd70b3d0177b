package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/notify"
	"coldwatch-data/internal/repository"

	"go.uber.org/zap"
)

// AlertService evaluates temperature readings against per-device threshold
// configs and manages those configs.
type AlertService interface {
	// EvaluateReading runs synchronously on the ingest path. It never
	// returns an error for delivery problems; a failed email is logged and
	// the reading is still considered handled.
	EvaluateReading(ctx context.Context, device *domain.Device, channel *string, temperature float64, at time.Time)

	SaveConfig(ctx context.Context, req SaveAlertConfigRequest) (*domain.TemperatureAlertConfig, error)
	ListConfigs(ctx context.Context, deviceID string) ([]domain.TemperatureAlertConfig, error)
	DeleteConfig(ctx context.Context, configID string) error
}

type alertService struct {
	configsRepo repository.AlertConfigsRepo
	sender      notify.Sender
	logger      *zap.Logger

	now func() time.Time
}

func NewAlertService(configsRepo repository.AlertConfigsRepo, sender notify.Sender, logger *zap.Logger) AlertService {
	return &alertService{
		configsRepo: configsRepo,
		sender:      sender,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *alertService) EvaluateReading(ctx context.Context, device *domain.Device, channel *string, temperature float64, at time.Time) {
	cfg, err := s.configsRepo.GetByChannel(ctx, device.DeviceID, channel)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return
		}
		s.logger.Error("Failed to load alert config",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return
	}
	if !cfg.Enabled || !cfg.Breaches(temperature) {
		return
	}

	now := s.now()
	if cfg.InCooldown(now) {
		s.logger.Debug("Alert suppressed by cooldown",
			zap.String("device_id", device.DeviceID),
			zap.String("config_id", cfg.ConfigID),
		)
		return
	}

	// Mark the alert sent before attempting delivery so a slow or failing
	// SMTP server cannot cause a burst of duplicates.
	if err := s.configsRepo.SetLastAlertAt(ctx, cfg.ConfigID, now); err != nil {
		s.logger.Error("Failed to record alert time",
			zap.String("config_id", cfg.ConfigID),
			zap.Error(err),
		)
		return
	}

	emails := cfg.EnabledEmails()
	if len(emails) == 0 {
		s.logger.Warn("Alert triggered but no enabled recipients",
			zap.String("device_id", device.DeviceID),
			zap.String("config_id", cfg.ConfigID),
		)
		return
	}

	msg := notify.TemperatureAlert(emails, device.DeviceName, device.DeviceID, channel,
		temperature, cfg.MinTemperature, cfg.MaxTemperature, at)
	if err := s.sender.Send(msg); err != nil {
		s.logger.Error("Failed to send temperature alert",
			zap.String("device_id", device.DeviceID),
			zap.String("config_id", cfg.ConfigID),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Temperature alert sent",
		zap.String("device_id", device.DeviceID),
		zap.Float64("temperature", temperature),
		zap.Int("recipients", len(emails)),
	)
}

// SaveAlertConfigRequest create or replace the threshold config for one
// (device, channel) pair.
type SaveAlertConfigRequest struct {
	DeviceID        string
	DeviceName      string
	SensorChannel   *string
	MinTemperature  float64
	MaxTemperature  float64
	Recipients      []domain.AlertRecipient
	Enabled         bool
	CooldownSeconds int
}

func (s *alertService) SaveConfig(ctx context.Context, req SaveAlertConfigRequest) (*domain.TemperatureAlertConfig, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if req.MinTemperature >= req.MaxTemperature {
		return nil, fmt.Errorf("min_temperature must be below max_temperature")
	}

	// Capture the previous recipient set to notify people who were just
	// disabled or removed.
	var prevRecipients []domain.AlertRecipient
	if prev, err := s.configsRepo.GetByChannel(ctx, req.DeviceID, req.SensorChannel); err == nil {
		prevRecipients = prev.ParseRecipients()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load existing alert config: %w", err)
	}

	recipientsJSON, err := encodeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}

	cfg := &domain.TemperatureAlertConfig{
		DeviceID:        req.DeviceID,
		MinTemperature:  req.MinTemperature,
		MaxTemperature:  req.MaxTemperature,
		Recipients:      recipientsJSON,
		Enabled:         req.Enabled,
		CooldownSeconds: req.CooldownSeconds,
	}
	if req.SensorChannel != nil {
		cfg.SensorChannel = sql.NullString{String: *req.SensorChannel, Valid: true}
	}

	saved, err := s.configsRepo.Upsert(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to save alert config: %w", err)
	}

	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = req.DeviceID
	}
	for _, email := range domain.DisabledDiff(prevRecipients, req.Recipients) {
		if err := s.sender.Send(notify.AlertUnsubscribed(email, deviceName)); err != nil {
			s.logger.Error("Failed to send unsubscribe notice",
				zap.String("email", email),
				zap.Error(err),
			)
		}
	}

	return saved, nil
}

func encodeRecipients(recipients []domain.AlertRecipient) (string, error) {
	if recipients == nil {
		recipients = []domain.AlertRecipient{}
	}
	for _, r := range recipients {
		if r.Email == "" {
			return "", fmt.Errorf("recipient email is required")
		}
	}
	raw, err := json.Marshal(recipients)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipients: %w", err)
	}
	return string(raw), nil
}

func (s *alertService) ListConfigs(ctx context.Context, deviceID string) ([]domain.TemperatureAlertConfig, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	return s.configsRepo.ListByDevice(ctx, deviceID)
}

func (s *alertService) DeleteConfig(ctx context.Context, configID string) error {
	if configID == "" {
		return fmt.Errorf("config_id is required")
	}
	return s.configsRepo.Delete(ctx, configID)
}
