package repository

import (
	"context"
	"errors"
	"time"

	"coldwatch-data/internal/domain"
)

// ErrNotFound returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrAmbiguousIdentity returned when an incoming device's hardware
// identifiers match two or more different cache rows. Reconciliation for
// that device aborts for manual review; no merge is attempted.
var ErrAmbiguousIdentity = errors.New("ambiguous device identity")

// DeviceUpsert canonical shape of one vendor device record as consumed by
// the cache reconciler. Pointer fields are absent when nil.
type DeviceUpsert struct {
	DeviceID     string
	SerialNumber *string
	DevEUI       *string
	IMEI         *string
	Name         string
	Description  *string
	Tag          *string
	DeviceType   *string
	Status       string
	SyncedAt     time.Time
}

// UpsertResult what the reconciliation transaction did.
type UpsertResult struct {
	Created  bool
	Migrated bool
	// Old device_id when Migrated is true.
	PreviousDeviceID string
}

type DevicesRepo interface {
	ListDevices(ctx context.Context, filters map[string]any) (items []domain.Device, total int, err error)
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)
	// GetDeviceByHardware matches on serial number or DevEUI; only non-nil
	// identifiers participate in the lookup.
	GetDeviceByHardware(ctx context.Context, serialNumber, devEUI *string) (*domain.Device, error)
	// UpsertDevice runs the identity reconciliation for one device as a
	// single transaction, repointing telemetry and alert configs when the
	// platform re-issued the device_id for known hardware.
	UpsertDevice(ctx context.Context, rec DeviceUpsert) (*UpsertResult, error)
	UpdateDevice(ctx context.Context, deviceID string, payload map[string]any) error
	DeleteDevice(ctx context.Context, deviceID string) error
	SetCriticalAlertActive(ctx context.Context, deviceID string, active bool) error
}

type TelemetryRepo interface {
	Exists(ctx context.Context, deviceID, eventID string) (bool, error)
	Insert(ctx context.Context, t *domain.Telemetry) error
	Latest(ctx context.Context, deviceID string) (*domain.Telemetry, error)
	ListByDevice(ctx context.Context, deviceID string, from, to *time.Time, page, size int) ([]domain.Telemetry, int, error)
}

type AlertConfigsRepo interface {
	// GetByChannel uses the named-channel query shape when channel is
	// non-nil and the explicit channel-is-null shape otherwise.
	GetByChannel(ctx context.Context, deviceID string, channel *string) (*domain.TemperatureAlertConfig, error)
	ListByDevice(ctx context.Context, deviceID string) ([]domain.TemperatureAlertConfig, error)
	// Upsert check-then-act inside a transaction; storage uniqueness alone
	// cannot cover the NULL-channel key.
	Upsert(ctx context.Context, cfg *domain.TemperatureAlertConfig) (*domain.TemperatureAlertConfig, error)
	Delete(ctx context.Context, configID string) error
	SetLastAlertAt(ctx context.Context, configID string, at time.Time) error
}

type AuthSettingsRepo interface {
	Get(ctx context.Context) (*domain.AuthSettings, error)
	Upsert(ctx context.Context, payload map[string]any) (*domain.AuthSettings, error)
	UpdateTokens(ctx context.Context, accessToken string, refreshToken *string, expiresAt time.Time) error
}

type CriticalDevicesRepo interface {
	List(ctx context.Context) ([]domain.CriticalDevice, error)
	Create(ctx context.Context, entry *domain.CriticalDevice) error
	Delete(ctx context.Context, entryID string) error
}

type UsersRepo interface {
	GetByAccount(ctx context.Context, account string) (*domain.User, error)
	ListUsers(ctx context.Context, page, size int) ([]domain.User, int, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, userID string, payload map[string]any) error
	DeleteUser(ctx context.Context, userID string) error
}
