package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"coldwatch-data/internal/domain"

	"go.uber.org/zap"
)

const telemetryColumns = `
	id,
	device_id,
	event_id,
	event_type,
	data_type,
	data_timestamp,
	payload,
	temperature,
	humidity,
	battery,
	device_sn,
	device_name,
	device_model,
	device_dev_eui,
	created_at`

type PostgresTelemetryRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresTelemetryRepo(db *sql.DB, logger *zap.Logger) *PostgresTelemetryRepo {
	return &PostgresTelemetryRepo{db: db, logger: logger}
}

func scanTelemetry(row interface{ Scan(...any) error }) (*domain.Telemetry, error) {
	var t domain.Telemetry
	if err := row.Scan(
		&t.ID,
		&t.DeviceID,
		&t.EventID,
		&t.EventType,
		&t.DataType,
		&t.DataTimestamp,
		&t.Payload,
		&t.Temperature,
		&t.Humidity,
		&t.Battery,
		&t.DeviceSN,
		&t.DeviceName,
		&t.DeviceModel,
		&t.DeviceDevEUI,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTelemetryRepo) Exists(ctx context.Context, deviceID, eventID string) (bool, error) {
	if deviceID == "" || eventID == "" {
		return false, fmt.Errorf("device_id and event_id are required")
	}
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM telemetry WHERE device_id = $1 AND event_id = $2 LIMIT 1`,
		deviceID, eventID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresTelemetryRepo) Insert(ctx context.Context, t *domain.Telemetry) error {
	if t.DeviceID == "" || t.EventID == "" {
		return fmt.Errorf("device_id and event_id are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry (
			device_id, event_id, event_type, data_type, data_timestamp,
			payload, temperature, humidity, battery,
			device_sn, device_name, device_model, device_dev_eui
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.DeviceID,
		t.EventID,
		t.EventType,
		t.DataType,
		t.DataTimestamp,
		t.Payload,
		t.Temperature,
		t.Humidity,
		t.Battery,
		t.DeviceSN,
		t.DeviceName,
		t.DeviceModel,
		t.DeviceDevEUI,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

func (r *PostgresTelemetryRepo) Latest(ctx context.Context, deviceID string) (*domain.Telemetry, error) {
	q := `SELECT ` + telemetryColumns + `
		FROM telemetry
		WHERE device_id = $1
		ORDER BY data_timestamp DESC
		LIMIT 1`
	t, err := scanTelemetry(r.db.QueryRowContext(ctx, q, deviceID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresTelemetryRepo) ListByDevice(ctx context.Context, deviceID string, from, to *time.Time, page, size int) ([]domain.Telemetry, int, error) {
	if deviceID == "" {
		return nil, 0, fmt.Errorf("device_id is required")
	}

	where := []string{"device_id = $1"}
	args := []any{deviceID}
	argN := 2
	if from != nil {
		where = append(where, fmt.Sprintf("data_timestamp >= $%d", argN))
		args = append(args, from.UnixMilli())
		argN++
	}
	if to != nil {
		where = append(where, fmt.Sprintf("data_timestamp <= $%d", argN))
		args = append(args, to.UnixMilli())
		argN++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM telemetry WHERE `+strings.Join(where, " AND "),
		args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	q := `SELECT ` + telemetryColumns + `
		FROM telemetry
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY data_timestamp DESC
		LIMIT $` + fmt.Sprintf("%d", argN) + ` OFFSET $` + fmt.Sprintf("%d", argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Telemetry{}
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}
