package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/gizwits-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

var (
	mu                   sync.RWMutex
	registeredPublishers = make(map[string]Publisher)
	seen                 sync.Map
)

// Change is one attribute-level update ready for downstream sinks.
type Change struct {
	DeviceID  string
	Attribute string
	Slug      string
	Value     model.AttributeValue
	Timestamp time.Time
	Online    bool
}

// Publisher is the observer interface snapshot consumers implement. The core
// never depends on a concrete sink.
type Publisher interface {
	Write(ctx context.Context, changes []Change) error
	RegisterDevice(device *model.Device) error
}

func Register(name string, p Publisher) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registeredPublishers[name]; ok {
		return errAlreadyRegistered
	}
	registeredPublishers[name] = p
	return nil
}

// Reset drops all registered publishers and the dedup cache.
func Reset() {
	mu.Lock()
	registeredPublishers = make(map[string]Publisher)
	mu.Unlock()
	seen = sync.Map{}
}

// PublishSnapshot fans a snapshot out to every registered publisher.
// Attributes whose value is unchanged since the last publish are skipped.
func PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	changes := make([]Change, 0, len(snap.Attributes))
	for name, value := range snap.Attributes {
		if !shouldUpdate(snap.DeviceID, name, value) {
			continue
		}
		changes = append(changes, Change{
			DeviceID:  snap.DeviceID,
			Attribute: name,
			Slug:      strings.Replace(slug.Make(name), "-", "_", -1),
			Value:     value,
			Timestamp: time.Unix(snap.Timestamp, 0),
			Online:    snap.Online,
		})
	}
	if len(changes) == 0 {
		return nil
	}
	mu.RLock()
	defer mu.RUnlock()
	for name, p := range registeredPublishers {
		if err := p.Write(ctx, changes); err != nil {
			zap.L().Error("failed to publish changes", zap.Error(err), zap.String("publisher", name))
			continue
		}
		zap.L().Debug("published changes", zap.Int("count", len(changes)), zap.String("publisher", name))
	}
	return nil
}

func RegisterDevice(device *model.Device) error {
	mu.RLock()
	defer mu.RUnlock()
	for name, p := range registeredPublishers {
		if err := p.RegisterDevice(device); err != nil {
			zap.L().Error("failed to register device", zap.Error(err), zap.String("publisher", name))
			continue
		}
		zap.L().Debug("registered device", zap.String("device", device.ID), zap.String("publisher", name))
	}
	return nil
}

func shouldUpdate(deviceID, attribute string, value model.AttributeValue) bool {
	key := fmt.Sprintf("%s_%s", deviceID, attribute)
	old, exists := seen.Load(key)
	if exists && old.(model.AttributeValue) == value {
		return false
	}
	seen.Store(key, value)
	return true
}
