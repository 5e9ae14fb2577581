package gizwits

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/gizwits-integration/internal/pkg/config"
	"github.com/anicoll/gizwits-integration/internal/pkg/model"
	"github.com/anicoll/gizwits-integration/internal/pkg/publisher"
)

// Manager ties the session, binding catalog, state store and the two
// transports together for one account.
type Manager struct {
	cfg     *config.GizwitsConfig
	client  *Client
	store   *Store
	errChan chan error
	logger  *zap.Logger

	mu      sync.RWMutex
	devices map[string]model.Device
	sockets map[string]*socket
}

func New(cfg *config.GizwitsConfig, errChan chan error) *Manager {
	return &Manager{
		cfg:     cfg,
		client:  NewClient(cfg),
		store:   NewStore(),
		errChan: errChan,
		logger:  zap.L(),
		devices: make(map[string]model.Device),
		sockets: make(map[string]*socket),
	}
}

// Login authenticates and starts the background token refresh task.
func (m *Manager) Login(ctx context.Context) error {
	if err := m.client.Login(ctx); err != nil {
		return err
	}
	m.client.StartRefresh(ctx, m.errChan)
	return nil
}

// SessionExpired exposes the session expiry signal for consumers.
func (m *Manager) SessionExpired() <-chan struct{} {
	return m.client.SessionExpired()
}

// RefreshBindings re-syncs the device registry from the cloud. The registry
// is replaced wholesale; descriptors are never removed piecemeal within a
// session.
func (m *Manager) RefreshBindings(ctx context.Context) error {
	devices, err := m.client.ListBindings(ctx, m.cfg.ProductTypes)
	if err != nil {
		return err
	}
	registry := make(map[string]model.Device, len(devices))
	for _, d := range devices {
		registry[d.ID] = d
	}
	m.mu.Lock()
	m.devices = registry
	m.mu.Unlock()

	for _, d := range devices {
		d := d
		if err := publisher.RegisterDevice(&d); err != nil {
			m.logger.Warn("failed to register device with publishers", zap.Error(err), zap.String("device_id", d.ID))
		}
	}
	m.logger.Debug("bindings refreshed", zap.Int("devices", len(devices)))
	return nil
}

// Device returns the descriptor for a bound device.
func (m *Manager) Device(deviceID string) (model.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	return d, ok
}

// Devices returns all bound device descriptors, ordered by id.
func (m *Manager) Devices() []model.Device {
	m.mu.RLock()
	out := make([]model.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) deviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the cached state for a device.
func (m *Manager) Snapshot(deviceID string) (model.Snapshot, bool) {
	return m.store.Get(deviceID)
}

// FetchDevice pulls the latest state for one device on demand and applies it
// through the store's timestamp gate.
func (m *Manager) FetchDevice(ctx context.Context, deviceID string) (model.Snapshot, error) {
	if _, ok := m.Device(deviceID); !ok {
		return model.Snapshot{}, ErrDeviceNotBound
	}
	timestamp, attrs, err := m.client.LatestData(ctx, deviceID)
	if err != nil {
		return model.Snapshot{}, err
	}
	m.store.ApplyPollUpdate(deviceID, timestamp, attrs)
	snap, _ := m.store.Get(deviceID)
	return snap, nil
}

// SetAttribute writes a single attribute to the device.
func (m *Manager) SetAttribute(ctx context.Context, deviceID, key string, value model.AttributeValue) error {
	return m.SetAttributes(ctx, deviceID, model.Attributes{key: value})
}

// SetAttributes issues a remote control command and, only on success,
// optimistically merges the written values into the cached snapshot.
func (m *Manager) SetAttributes(ctx context.Context, deviceID string, attrs model.Attributes) error {
	if _, ok := m.Device(deviceID); !ok {
		return ErrDeviceNotBound
	}
	if err := m.client.Control(ctx, deviceID, attrs); err != nil {
		return err
	}
	m.store.MergeWrite(deviceID, attrs)
	return nil
}

// Subscribe attaches the device to the push channel. Devices whose endpoint
// resolves to the same host:port multiplex onto one connection; a fresh
// connection is created lazily when none exists for the endpoint.
func (m *Manager) Subscribe(ctx context.Context, deviceID string) error {
	device, ok := m.Device(deviceID)
	if !ok {
		return ErrDeviceNotBound
	}
	endpoint := device.Endpoint(m.cfg.Ssl)

	m.mu.Lock()
	sk, ok := m.sockets[endpoint]
	if !ok {
		sk = newSocket(m, endpoint)
		m.sockets[endpoint] = sk
	}
	m.mu.Unlock()

	return sk.addDevice(ctx, deviceID)
}

// SubscribeAll subscribes every bound device.
func (m *Manager) SubscribeAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.deviceIDs() {
		if err := m.Subscribe(ctx, id); err != nil {
			m.logger.Error("failed to subscribe device", zap.Error(err), zap.String("device_id", id))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logout discards the session and tears down every connection. The refresh
// task stops once it observes the missing session.
func (m *Manager) Logout() error {
	err := m.Close()
	m.client.clearSession()
	return err
}

// Close tears down all socket connections. Background tasks stop with the
// context passed to Login.
func (m *Manager) Close() error {
	m.mu.Lock()
	sockets := m.sockets
	m.sockets = make(map[string]*socket)
	m.mu.Unlock()
	for _, sk := range sockets {
		sk.close()
	}
	return nil
}
