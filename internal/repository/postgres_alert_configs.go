package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coldwatch-data/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const alertConfigColumns = `
	config_id,
	device_id,
	sensor_channel,
	min_temperature,
	max_temperature,
	recipients::text,
	enabled,
	cooldown_seconds,
	last_alert_at,
	created_at,
	updated_at`

type PostgresAlertConfigsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresAlertConfigsRepo(db *sql.DB, logger *zap.Logger) *PostgresAlertConfigsRepo {
	return &PostgresAlertConfigsRepo{db: db, logger: logger}
}

func scanAlertConfig(row interface{ Scan(...any) error }) (*domain.TemperatureAlertConfig, error) {
	var c domain.TemperatureAlertConfig
	if err := row.Scan(
		&c.ConfigID,
		&c.DeviceID,
		&c.SensorChannel,
		&c.MinTemperature,
		&c.MaxTemperature,
		&c.Recipients,
		&c.Enabled,
		&c.CooldownSeconds,
		&c.LastAlertAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByChannel addresses one (device, channel) configuration. The NULL
// channel is its own key, reached through an explicit IS NULL query shape;
// a NULL parameter in the equality shape would never match it.
func (r *PostgresAlertConfigsRepo) GetByChannel(ctx context.Context, deviceID string, channel *string) (*domain.TemperatureAlertConfig, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	var row *sql.Row
	if channel == nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+alertConfigColumns+` FROM temperature_alert_configs
			 WHERE device_id = $1 AND sensor_channel IS NULL`,
			deviceID,
		)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+alertConfigColumns+` FROM temperature_alert_configs
			 WHERE device_id = $1 AND sensor_channel = $2`,
			deviceID, *channel,
		)
	}

	c, err := scanAlertConfig(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresAlertConfigsRepo) ListByDevice(ctx context.Context, deviceID string) ([]domain.TemperatureAlertConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertConfigColumns+` FROM temperature_alert_configs
		 WHERE device_id = $1
		 ORDER BY sensor_channel NULLS FIRST`,
		deviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TemperatureAlertConfig{}
	for rows.Next() {
		c, err := scanAlertConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Upsert writes a configuration under its (device, channel) key. The check
// and the write share a transaction because the NULL-channel variant cannot
// be guarded by a plain unique constraint.
func (r *PostgresAlertConfigsRepo) Upsert(ctx context.Context, cfg *domain.TemperatureAlertConfig) (*domain.TemperatureAlertConfig, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = domain.DefaultAlertCooldownSeconds
	}
	if cfg.Recipients == "" {
		cfg.Recipients = "[]"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existingID string
	if cfg.SensorChannel.Valid {
		err = tx.QueryRowContext(ctx,
			`SELECT config_id FROM temperature_alert_configs
			 WHERE device_id = $1 AND sensor_channel = $2 FOR UPDATE`,
			cfg.DeviceID, cfg.SensorChannel.String,
		).Scan(&existingID)
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT config_id FROM temperature_alert_configs
			 WHERE device_id = $1 AND sensor_channel IS NULL FOR UPDATE`,
			cfg.DeviceID,
		).Scan(&existingID)
	}
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query alert config: %w", err)
	}

	if err == sql.ErrNoRows {
		cfg.ConfigID = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO temperature_alert_configs (
				config_id, device_id, sensor_channel,
				min_temperature, max_temperature,
				recipients, enabled, cooldown_seconds
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			cfg.ConfigID,
			cfg.DeviceID,
			cfg.SensorChannel,
			cfg.MinTemperature,
			cfg.MaxTemperature,
			cfg.Recipients,
			cfg.Enabled,
			cfg.CooldownSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert alert config: %w", err)
		}
	} else {
		cfg.ConfigID = existingID
		_, err = tx.ExecContext(ctx, `
			UPDATE temperature_alert_configs SET
				min_temperature  = $2,
				max_temperature  = $3,
				recipients       = $4,
				enabled          = $5,
				cooldown_seconds = $6,
				updated_at       = NOW()
			WHERE config_id = $1`,
			cfg.ConfigID,
			cfg.MinTemperature,
			cfg.MaxTemperature,
			cfg.Recipients,
			cfg.Enabled,
			cfg.CooldownSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update alert config: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return cfg, nil
}

func (r *PostgresAlertConfigsRepo) Delete(ctx context.Context, configID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM temperature_alert_configs WHERE config_id = $1`,
		configID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAlertConfigsRepo) SetLastAlertAt(ctx context.Context, configID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE temperature_alert_configs SET last_alert_at = $2, updated_at = NOW() WHERE config_id = $1`,
		configID, at,
	)
	return err
}
