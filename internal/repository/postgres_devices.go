package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"coldwatch-data/internal/domain"

	"go.uber.org/zap"
)

const deviceColumns = `
	device_id,
	serial_number,
	dev_eui,
	imei,
	device_name,
	description,
	tag,
	device_type,
	last_status,
	last_sync_at,
	is_critical,
	critical_alert_active,
	CASE WHEN display_config IS NULL THEN NULL ELSE display_config::text END as display_config,
	created_at,
	updated_at`

type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

func scanDevice(row interface{ Scan(...any) error }) (*domain.Device, error) {
	var d domain.Device
	if err := row.Scan(
		&d.DeviceID,
		&d.SerialNumber,
		&d.DevEUI,
		&d.IMEI,
		&d.DeviceName,
		&d.Description,
		&d.Tag,
		&d.DeviceType,
		&d.LastStatus,
		&d.LastSyncAt,
		&d.IsCritical,
		&d.CriticalAlertActive,
		&d.DisplayConfig,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresDevicesRepo) ListDevices(ctx context.Context, filters map[string]any) ([]domain.Device, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argN := 1

	if v, ok := filters["last_status"].(string); ok && v != "" {
		where = append(where, fmt.Sprintf("last_status = $%d", argN))
		args = append(args, v)
		argN++
	}
	if v, ok := filters["is_critical"].(bool); ok {
		where = append(where, fmt.Sprintf("is_critical = $%d", argN))
		args = append(args, v)
		argN++
	}
	if kw, ok := filters["search_keyword"].(string); ok && kw != "" {
		where = append(where, fmt.Sprintf("(device_name ILIKE $%d OR serial_number ILIKE $%d OR dev_eui ILIKE $%d)", argN, argN, argN))
		args = append(args, "%"+kw+"%")
		argN++
	}

	queryCount := `SELECT COUNT(*) FROM devices WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, _ := filters["page"].(int)
	size, _ := filters["size"].(int)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	q := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY device_name
		LIMIT $` + fmt.Sprintf("%d", argN) + ` OFFSET $` + fmt.Sprintf("%d", argN+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *PostgresDevicesRepo) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	q := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`
	d, err := scanDevice(r.db.QueryRowContext(ctx, q, deviceID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDeviceByHardware looks up the cache row by stable hardware identity.
// Only non-nil identifiers participate. Two distinct matches is an
// ambiguity, not a choice to make here.
func (r *PostgresDevicesRepo) GetDeviceByHardware(ctx context.Context, serialNumber, devEUI *string) (*domain.Device, error) {
	conds := []string{}
	args := []any{}
	argN := 1
	if serialNumber != nil && *serialNumber != "" {
		conds = append(conds, fmt.Sprintf("serial_number = $%d", argN))
		args = append(args, *serialNumber)
		argN++
	}
	if devEUI != nil && *devEUI != "" {
		conds = append(conds, fmt.Sprintf("dev_eui = $%d", argN))
		args = append(args, *devEUI)
		argN++
	}
	if len(conds) == 0 {
		return nil, ErrNotFound
	}

	q := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE ` + strings.Join(conds, " OR ") + `
		ORDER BY device_id
		LIMIT 2`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, ErrAmbiguousIdentity
	}
}

// UpsertDevice reconciles one vendor record into the cache as a single
// transaction:
//  1. match by device_id -> update in place
//  2. match by hardware identity with a different device_id -> identity
//     migration: repoint telemetry and alert configs to the new device_id,
//     then rewrite the cache row
//  3. no match -> insert
//
// The repoint must never be observed partially applied, so all steps share
// one transaction and the device_id foreign keys are deferred to commit.
func (r *PostgresDevicesRepo) UpsertDevice(ctx context.Context, rec DeviceUpsert) (*UpsertResult, error) {
	if rec.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. By external identity.
	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT device_id FROM devices WHERE device_id = $1 FOR UPDATE`,
		rec.DeviceID,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	if err == nil {
		if err := updateDeviceRow(ctx, tx, rec.DeviceID, rec); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &UpsertResult{}, nil
	}

	// 2. By hardware identity.
	conds := []string{}
	args := []any{}
	argN := 1
	if rec.SerialNumber != nil && *rec.SerialNumber != "" {
		conds = append(conds, fmt.Sprintf("serial_number = $%d", argN))
		args = append(args, *rec.SerialNumber)
		argN++
	}
	if rec.DevEUI != nil && *rec.DevEUI != "" {
		conds = append(conds, fmt.Sprintf("dev_eui = $%d", argN))
		args = append(args, *rec.DevEUI)
		argN++
	}

	var matches []string
	if len(conds) > 0 {
		rows, err := tx.QueryContext(ctx,
			`SELECT device_id FROM devices WHERE `+strings.Join(conds, " OR ")+` ORDER BY device_id LIMIT 2 FOR UPDATE`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query device by hardware identity: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			matches = append(matches, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(matches) > 1 {
		r.logger.Error("Device hardware identity matches multiple cache rows, manual review required",
			zap.String("incoming_device_id", rec.DeviceID),
			zap.Strings("matched_device_ids", matches),
		)
		return nil, ErrAmbiguousIdentity
	}

	if len(matches) == 1 {
		oldID := matches[0]
		// Identity migration: the platform re-issued a device_id for known
		// hardware. Dependent rows are re-pointed, never orphaned.
		if _, err := tx.ExecContext(ctx,
			`UPDATE devices SET device_id = $1 WHERE device_id = $2`,
			rec.DeviceID, oldID,
		); err != nil {
			return nil, fmt.Errorf("failed to migrate device identity: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE telemetry SET device_id = $1 WHERE device_id = $2`,
			rec.DeviceID, oldID,
		); err != nil {
			return nil, fmt.Errorf("failed to repoint telemetry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE temperature_alert_configs SET device_id = $1 WHERE device_id = $2`,
			rec.DeviceID, oldID,
		); err != nil {
			return nil, fmt.Errorf("failed to repoint alert configs: %w", err)
		}
		if err := updateDeviceRow(ctx, tx, rec.DeviceID, rec); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		r.logger.Info("Device identity migrated",
			zap.String("old_device_id", oldID),
			zap.String("new_device_id", rec.DeviceID),
		)
		return &UpsertResult{Migrated: true, PreviousDeviceID: oldID}, nil
	}

	// 3. First sighting.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (
			device_id, serial_number, dev_eui, imei,
			device_name, description, tag, device_type,
			last_status, last_sync_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.DeviceID,
		nullStr(rec.SerialNumber),
		nullStr(rec.DevEUI),
		nullStr(rec.IMEI),
		rec.Name,
		nullStr(rec.Description),
		nullStr(rec.Tag),
		nullStr(rec.DeviceType),
		statusOrUnknown(rec.Status),
		rec.SyncedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert device: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &UpsertResult{Created: true}, nil
}

func updateDeviceRow(ctx context.Context, tx *sql.Tx, deviceID string, rec DeviceUpsert) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE devices SET
			serial_number = COALESCE($2, serial_number),
			dev_eui       = COALESCE($3, dev_eui),
			imei          = COALESCE($4, imei),
			device_name   = $5,
			description   = COALESCE($6, description),
			tag           = COALESCE($7, tag),
			device_type   = COALESCE($8, device_type),
			last_status   = $9,
			last_sync_at  = $10,
			updated_at    = NOW()
		WHERE device_id = $1`,
		deviceID,
		nullStr(rec.SerialNumber),
		nullStr(rec.DevEUI),
		nullStr(rec.IMEI),
		rec.Name,
		nullStr(rec.Description),
		nullStr(rec.Tag),
		nullStr(rec.DeviceType),
		statusOrUnknown(rec.Status),
		rec.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) UpdateDevice(ctx context.Context, deviceID string, payload map[string]any) error {
	set := []string{}
	args := []any{deviceID}
	argN := 2
	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, v)
		argN++
	}
	if v, ok := payload["device_name"]; ok {
		add("device_name", v)
	}
	if v, ok := payload["description"]; ok {
		add("description", v)
	}
	if v, ok := payload["tag"]; ok {
		add("tag", v)
	}
	if v, ok := payload["is_critical"]; ok {
		add("is_critical", v)
	}
	if v, ok := payload["display_config"]; ok {
		add("display_config", v)
	}

	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = NOW()")
	q := "UPDATE devices SET " + strings.Join(set, ", ") + " WHERE device_id = $1"
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice removes the cache row only. Dependent telemetry and alert
// configs are an explicit admin concern and are left untouched here; the
// schema blocks the delete while dependents still reference the row.
func (r *PostgresDevicesRepo) DeleteDevice(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresDevicesRepo) SetCriticalAlertActive(ctx context.Context, deviceID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET critical_alert_active = $2, updated_at = NOW() WHERE device_id = $1`,
		deviceID, active,
	)
	return err
}

func nullStr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func statusOrUnknown(s string) string {
	switch s {
	case domain.DeviceStatusOnline, domain.DeviceStatusOffline:
		return s
	default:
		return domain.DeviceStatusUnknown
	}
}
