package gizwits

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/gizwits-integration/internal/pkg/contxt"
	"github.com/anicoll/gizwits-integration/internal/pkg/model"
	"github.com/anicoll/gizwits-integration/internal/pkg/publisher"
)

const publishTimeout = 5 * time.Second

// Store is the single source of truth for device attribute snapshots. Poll
// and push transports both write through it; poll updates are gated on the
// server timestamp, push updates merge at attribute level under a local
// timestamp.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*model.Snapshot
	logger    *zap.Logger
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		snapshots: make(map[string]*model.Snapshot),
		logger:    zap.L(),
		now:       time.Now,
	}
}

// ApplyPollUpdate applies a full, server-timestamped snapshot. A zero
// timestamp marks the device offline and clears its attributes. Updates that
// are not strictly newer than the stored snapshot are discarded, so delivery
// order does not matter.
func (s *Store) ApplyPollUpdate(deviceID string, timestamp int64, attrs model.Attributes) {
	s.mu.Lock()
	if timestamp == 0 {
		snap := &model.Snapshot{DeviceID: deviceID, Timestamp: 0, Online: false, Attributes: model.Attributes{}}
		s.snapshots[deviceID] = snap
		s.mu.Unlock()
		s.logger.Debug("device reported offline", zap.String("device_id", deviceID))
		s.publish(*snap)
		return
	}
	if cur, ok := s.snapshots[deviceID]; ok && timestamp <= cur.Timestamp {
		s.mu.Unlock()
		s.logger.Debug("discarding stale poll update",
			zap.String("device_id", deviceID),
			zap.Int64("timestamp", timestamp),
			zap.Int64("current", cur.Timestamp))
		return
	}
	snap := &model.Snapshot{DeviceID: deviceID, Timestamp: timestamp, Online: true, Attributes: attrs.Clone()}
	s.snapshots[deviceID] = snap
	s.mu.Unlock()
	s.publish(*snap)
}

// ApplyPushUpdate merges a partial attribute update from the push channel.
// Push notifications carry no server timestamp, so the local observation time
// becomes the snapshot timestamp for later staleness comparisons.
func (s *Store) ApplyPushUpdate(deviceID string, partial model.Attributes) {
	s.mu.Lock()
	attrs := model.Attributes{}
	if cur, ok := s.snapshots[deviceID]; ok {
		attrs = cur.Attributes.Clone()
	}
	attrs.Merge(partial)
	snap := &model.Snapshot{DeviceID: deviceID, Timestamp: s.now().Unix(), Online: true, Attributes: attrs}
	s.snapshots[deviceID] = snap
	s.mu.Unlock()
	s.publish(*snap)
}

// MergeWrite optimistically merges attribute values that were just written to
// the device. The remote API does not reflect writes in reads immediately, so
// the local cache assumes the write took effect. Callers must only invoke it
// after the remote write succeeded.
func (s *Store) MergeWrite(deviceID string, written model.Attributes) {
	s.ApplyPushUpdate(deviceID, written)
}

// Get returns a copy of the device's snapshot.
func (s *Store) Get(deviceID string) (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.snapshots[deviceID]
	if !ok {
		return model.Snapshot{}, false
	}
	snap := *cur
	snap.Attributes = cur.Attributes.Clone()
	return snap, true
}

func (s *Store) publish(snap model.Snapshot) {
	if err := publisher.PublishSnapshot(contxt.NewContext(publishTimeout), snap); err != nil {
		s.logger.Error("failed to publish snapshot", zap.Error(err), zap.String("device_id", snap.DeviceID))
	}
}
