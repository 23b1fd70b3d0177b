package service

import (
	"context"
	"fmt"
	"time"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/notify"
	"coldwatch-data/internal/repository"
)

// In-memory fakes of the repository interfaces, shared by the service tests.

type fakeDevicesRepo struct {
	devices map[string]*domain.Device

	upsertCalls []repository.DeviceUpsert
	upsertFn    func(rec repository.DeviceUpsert) (*repository.UpsertResult, error)

	criticalActive map[string]bool
	updates        map[string]map[string]any
}

func newFakeDevicesRepo(devices ...*domain.Device) *fakeDevicesRepo {
	f := &fakeDevicesRepo{
		devices:        map[string]*domain.Device{},
		criticalActive: map[string]bool{},
		updates:        map[string]map[string]any{},
	}
	for _, d := range devices {
		f.devices[d.DeviceID] = d
	}
	return f
}

func (f *fakeDevicesRepo) ListDevices(ctx context.Context, filters map[string]any) ([]domain.Device, int, error) {
	var out []domain.Device
	for _, d := range f.devices {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (f *fakeDevicesRepo) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (f *fakeDevicesRepo) GetDeviceByHardware(ctx context.Context, serialNumber, devEUI *string) (*domain.Device, error) {
	for _, d := range f.devices {
		if serialNumber != nil && d.SerialNumber.Valid && d.SerialNumber.String == *serialNumber {
			return d, nil
		}
		if devEUI != nil && d.DevEUI.Valid && d.DevEUI.String == *devEUI {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDevicesRepo) UpsertDevice(ctx context.Context, rec repository.DeviceUpsert) (*repository.UpsertResult, error) {
	f.upsertCalls = append(f.upsertCalls, rec)
	if f.upsertFn != nil {
		return f.upsertFn(rec)
	}
	_, known := f.devices[rec.DeviceID]
	return &repository.UpsertResult{Created: !known}, nil
}

func (f *fakeDevicesRepo) UpdateDevice(ctx context.Context, deviceID string, payload map[string]any) error {
	if _, ok := f.devices[deviceID]; !ok {
		return repository.ErrNotFound
	}
	f.updates[deviceID] = payload
	return nil
}

func (f *fakeDevicesRepo) DeleteDevice(ctx context.Context, deviceID string) error {
	if _, ok := f.devices[deviceID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.devices, deviceID)
	return nil
}

func (f *fakeDevicesRepo) SetCriticalAlertActive(ctx context.Context, deviceID string, active bool) error {
	d, ok := f.devices[deviceID]
	if !ok {
		return repository.ErrNotFound
	}
	d.CriticalAlertActive = active
	f.criticalActive[deviceID] = active
	return nil
}

type fakeTelemetryRepo struct {
	rows     []*domain.Telemetry
	existing map[string]bool // "deviceID|eventID"

	insertErr error
}

func newFakeTelemetryRepo() *fakeTelemetryRepo {
	return &fakeTelemetryRepo{existing: map[string]bool{}}
}

func dedupKey(deviceID, eventID string) string { return deviceID + "|" + eventID }

func (f *fakeTelemetryRepo) Exists(ctx context.Context, deviceID, eventID string) (bool, error) {
	return f.existing[dedupKey(deviceID, eventID)], nil
}

func (f *fakeTelemetryRepo) Insert(ctx context.Context, t *domain.Telemetry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, t)
	f.existing[dedupKey(t.DeviceID, t.EventID)] = true
	return nil
}

func (f *fakeTelemetryRepo) Latest(ctx context.Context, deviceID string) (*domain.Telemetry, error) {
	var latest *domain.Telemetry
	for _, row := range f.rows {
		if row.DeviceID != deviceID {
			continue
		}
		if latest == nil || row.DataTimestamp > latest.DataTimestamp {
			latest = row
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeTelemetryRepo) ListByDevice(ctx context.Context, deviceID string, from, to *time.Time, page, size int) ([]domain.Telemetry, int, error) {
	var out []domain.Telemetry
	for _, row := range f.rows {
		if row.DeviceID == deviceID {
			out = append(out, *row)
		}
	}
	return out, len(out), nil
}

type fakeAlertConfigsRepo struct {
	configs map[string]*domain.TemperatureAlertConfig // keyed by config_id

	lastAlertSet map[string]time.Time
}

func newFakeAlertConfigsRepo(configs ...*domain.TemperatureAlertConfig) *fakeAlertConfigsRepo {
	f := &fakeAlertConfigsRepo{
		configs:      map[string]*domain.TemperatureAlertConfig{},
		lastAlertSet: map[string]time.Time{},
	}
	for _, c := range configs {
		f.configs[c.ConfigID] = c
	}
	return f
}

func (f *fakeAlertConfigsRepo) GetByChannel(ctx context.Context, deviceID string, channel *string) (*domain.TemperatureAlertConfig, error) {
	for _, c := range f.configs {
		if c.DeviceID != deviceID {
			continue
		}
		if channel == nil && !c.SensorChannel.Valid {
			return c, nil
		}
		if channel != nil && c.SensorChannel.Valid && c.SensorChannel.String == *channel {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAlertConfigsRepo) ListByDevice(ctx context.Context, deviceID string) ([]domain.TemperatureAlertConfig, error) {
	var out []domain.TemperatureAlertConfig
	for _, c := range f.configs {
		if c.DeviceID == deviceID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeAlertConfigsRepo) Upsert(ctx context.Context, cfg *domain.TemperatureAlertConfig) (*domain.TemperatureAlertConfig, error) {
	if cfg.ConfigID == "" {
		cfg.ConfigID = fmt.Sprintf("cfg-%d", len(f.configs)+1)
	}
	stored := *cfg
	f.configs[stored.ConfigID] = &stored
	return &stored, nil
}

func (f *fakeAlertConfigsRepo) Delete(ctx context.Context, configID string) error {
	if _, ok := f.configs[configID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.configs, configID)
	return nil
}

func (f *fakeAlertConfigsRepo) SetLastAlertAt(ctx context.Context, configID string, at time.Time) error {
	c, ok := f.configs[configID]
	if !ok {
		return repository.ErrNotFound
	}
	c.LastAlertAt.Time = at
	c.LastAlertAt.Valid = true
	f.lastAlertSet[configID] = at
	return nil
}

type fakeCriticalDevicesRepo struct {
	entries []domain.CriticalDevice
}

func (f *fakeCriticalDevicesRepo) List(ctx context.Context) ([]domain.CriticalDevice, error) {
	return f.entries, nil
}

func (f *fakeCriticalDevicesRepo) Create(ctx context.Context, entry *domain.CriticalDevice) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeCriticalDevicesRepo) Delete(ctx context.Context, entryID string) error {
	for i, e := range f.entries {
		if e.EntryID == entryID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeUsersRepo struct {
	users map[string]*domain.User // keyed by account
}

func newFakeUsersRepo(users ...*domain.User) *fakeUsersRepo {
	f := &fakeUsersRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		f.users[u.Account] = u
	}
	return f
}

func (f *fakeUsersRepo) GetByAccount(ctx context.Context, account string) (*domain.User, error) {
	u, ok := f.users[account]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) ListUsers(ctx context.Context, page, size int) ([]domain.User, int, error) {
	var out []domain.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUsersRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if _, ok := f.users[u.Account]; ok {
		return fmt.Errorf("account already exists")
	}
	f.users[u.Account] = u
	return nil
}

func (f *fakeUsersRepo) UpdateUser(ctx context.Context, userID string, payload map[string]any) error {
	return nil
}

func (f *fakeUsersRepo) DeleteUser(ctx context.Context, userID string) error {
	for account, u := range f.users {
		if u.UserID == userID {
			delete(f.users, account)
			return nil
		}
	}
	return repository.ErrNotFound
}

// captureSender records outbound messages instead of delivering them.
type captureSender struct {
	messages []*notify.Message
	err      error
}

func (c *captureSender) Send(msg *notify.Message) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}
