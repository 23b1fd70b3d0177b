package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"coldwatch-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertConfigsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresAlertConfigsRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresAlertConfigsRepo(db, zap.NewNop())
	return db, mock, repo
}

var alertConfigRowColumns = []string{
	"config_id", "device_id", "sensor_channel", "min_temperature",
	"max_temperature", "recipients", "enabled", "cooldown_seconds",
	"last_alert_at", "created_at", "updated_at",
}

func TestGetByChannel_NullChannelShape(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(alertConfigRowColumns).AddRow(
		"c1", "d1", nil, 2.0, 8.0, `[]`, true, 300, nil, now, now,
	)

	// The NULL key must go through the IS NULL shape: only device_id binds.
	mock.ExpectQuery(`sensor_channel IS NULL`).
		WithArgs("d1").
		WillReturnRows(rows)

	cfg, err := repo.GetByChannel(context.Background(), "d1", nil)

	require.NoError(t, err)
	assert.Equal(t, "c1", cfg.ConfigID)
	assert.False(t, cfg.SensorChannel.Valid)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByChannel_NamedChannelShape(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(alertConfigRowColumns).AddRow(
		"c2", "d1", "CH1", -20.0, -15.0, `[{"email":"a@b.c","enabled":true}]`, true, 300, nil, now, now,
	)

	mock.ExpectQuery(`sensor_channel = \$2`).
		WithArgs("d1", "CH1").
		WillReturnRows(rows)

	ch := "CH1"
	cfg, err := repo.GetByChannel(context.Background(), "d1", &ch)

	require.NoError(t, err)
	assert.Equal(t, "c2", cfg.ConfigID)
	assert.Equal(t, "CH1", cfg.SensorChannel.String)
	assert.Equal(t, []string{"a@b.c"}, cfg.EnabledEmails())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByChannel_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	mock.ExpectQuery(`sensor_channel IS NULL`).
		WithArgs("d1").
		WillReturnError(sql.ErrNoRows)

	cfg, err := repo.GetByChannel(context.Background(), "d1", nil)

	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_InsertNullChannel(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`sensor_channel IS NULL`).
		WithArgs("d1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO temperature_alert_configs`).
		WithArgs(sqlmock.AnyArg(), "d1", sql.NullString{}, 2.0, 8.0, `[]`, true, 300).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cfg, err := repo.Upsert(context.Background(), &domain.TemperatureAlertConfig{
		DeviceID:       "d1",
		MinTemperature: 2.0,
		MaxTemperature: 8.0,
		Enabled:        true,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ConfigID)
	assert.Equal(t, domain.DefaultAlertCooldownSeconds, cfg.CooldownSeconds)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_UpdateExistingNamedChannel(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`sensor_channel = \$2`).
		WithArgs("d1", "CH1").
		WillReturnRows(sqlmock.NewRows([]string{"config_id"}).AddRow("c2"))
	mock.ExpectExec(`UPDATE temperature_alert_configs SET`).
		WithArgs("c2", -25.0, -18.0, `[]`, false, 600).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cfg, err := repo.Upsert(context.Background(), &domain.TemperatureAlertConfig{
		DeviceID:        "d1",
		SensorChannel:   sql.NullString{String: "CH1", Valid: true},
		MinTemperature:  -25.0,
		MaxTemperature:  -18.0,
		CooldownSeconds: 600,
	})

	require.NoError(t, err)
	assert.Equal(t, "c2", cfg.ConfigID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_IndependentKeys(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	// Deleting one addressable config touches exactly that row.
	mock.ExpectExec(`DELETE FROM temperature_alert_configs`).
		WithArgs("c2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "c2")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetLastAlertAt(t *testing.T) {
	db, mock, repo := setupMockAlertConfigsDB(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`UPDATE temperature_alert_configs SET last_alert_at`).
		WithArgs("c1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetLastAlertAt(context.Background(), "c1", at)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
