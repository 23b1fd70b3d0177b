package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coldwatch-data/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresCriticalDevicesRepo stores the offline-monitor watch list.
// Data-driven so operators can add or remove watched hardware without a
// deployment.
type PostgresCriticalDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresCriticalDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresCriticalDevicesRepo {
	return &PostgresCriticalDevicesRepo{db: db, logger: logger}
}

func (r *PostgresCriticalDevicesRepo) List(ctx context.Context) ([]domain.CriticalDevice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry_id, label, serial_number, dev_eui, created_at
		 FROM critical_devices ORDER BY label`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.CriticalDevice{}
	for rows.Next() {
		var c domain.CriticalDevice
		if err := rows.Scan(&c.EntryID, &c.Label, &c.SerialNumber, &c.DevEUI, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCriticalDevicesRepo) Create(ctx context.Context, entry *domain.CriticalDevice) error {
	if entry.Label == "" {
		return fmt.Errorf("label is required")
	}
	if !entry.SerialNumber.Valid && !entry.DevEUI.Valid {
		return fmt.Errorf("serial_number or dev_eui is required")
	}
	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO critical_devices (entry_id, label, serial_number, dev_eui)
		 VALUES ($1, $2, $3, $4)`,
		entry.EntryID, entry.Label, entry.SerialNumber, entry.DevEUI,
	)
	if err != nil {
		return fmt.Errorf("failed to insert critical device: %w", err)
	}
	return nil
}

func (r *PostgresCriticalDevicesRepo) Delete(ctx context.Context, entryID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM critical_devices WHERE entry_id = $1`, entryID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
