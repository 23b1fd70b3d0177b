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

func setupMockTelemetryDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresTelemetryRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresTelemetryRepo(db, zap.NewNop())
	return db, mock, repo
}

func TestTelemetryExists_Hit(t *testing.T) {
	db, mock, repo := setupMockTelemetryDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT 1 FROM telemetry`).
		WithArgs("d1", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), "d1", "e1")

	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryExists_Miss(t *testing.T) {
	db, mock, repo := setupMockTelemetryDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT 1 FROM telemetry`).
		WithArgs("d1", "e1").
		WillReturnError(sql.ErrNoRows)

	ok, err := repo.Exists(context.Background(), "d1", "e1")

	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryExists_MissingKey(t *testing.T) {
	db, mock, repo := setupMockTelemetryDB(t)
	defer db.Close()

	_, err := repo.Exists(context.Background(), "", "e1")

	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryInsert_Success(t *testing.T) {
	db, mock, repo := setupMockTelemetryDB(t)
	defer db.Close()

	rec := &domain.Telemetry{
		DeviceID:      "d1",
		EventID:       "e1",
		EventType:     "DEVICE_DATA",
		DataType:      "telemetry",
		DataTimestamp: 1700000000000,
		Payload:       []byte(`{"temperature": 3.5}`),
		Temperature:   sql.NullFloat64{Float64: 3.5, Valid: true},
	}

	mock.ExpectExec(`INSERT INTO telemetry`).
		WithArgs(
			"d1", "e1", "DEVICE_DATA", "telemetry", int64(1700000000000),
			[]byte(`{"temperature": 3.5}`),
			rec.Temperature, rec.Humidity, rec.Battery,
			rec.DeviceSN, rec.DeviceName, rec.DeviceModel, rec.DeviceDevEUI,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), rec)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryLatest_NotFound(t *testing.T) {
	db, mock, repo := setupMockTelemetryDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("d1").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.Latest(context.Background(), "d1")

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryListByDevice_TimeWindow(t *testing.T) {
	db, mock, repo := setupMockTelemetryDB(t)
	defer db.Close()

	from := time.UnixMilli(1700000000000)
	to := time.UnixMilli(1700003600000)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("d1", from.UnixMilli(), to.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows([]string{
		"id", "device_id", "event_id", "event_type", "data_type",
		"data_timestamp", "payload", "temperature", "humidity", "battery",
		"device_sn", "device_name", "device_model", "device_dev_eui", "created_at",
	}).AddRow(
		int64(1), "d1", "e1", "DEVICE_DATA", "telemetry",
		int64(1700000300000), []byte(`{}`), 3.5, 40.0, 98,
		"X1", "Sensor 1", "EM300-TH", "EUI-1", now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("d1", from.UnixMilli(), to.UnixMilli(), 50, 0).
		WillReturnRows(rows)

	items, total, err := repo.ListByDevice(context.Background(), "d1", &from, &to, 1, 50)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "e1", items[0].EventID)
	assert.Equal(t, 3.5, items[0].Temperature.Float64)

	require.NoError(t, mock.ExpectationsWereMet())
}
