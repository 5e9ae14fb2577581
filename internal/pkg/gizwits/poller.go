package gizwits

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Refresh runs one full update cycle: re-sync the bindings, then fetch the
// latest data for every bound device. It is scheduled at a fixed interval as
// a consistency backstop regardless of push activity.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.RefreshBindings(ctx); err != nil {
		return err
	}
	return m.RefreshDevices(ctx, m.deviceIDs())
}

// RefreshDevices polls each device in turn and feeds the responses through
// the store's timestamp gate. A single device failing is logged and skipped;
// more than the configured number of consecutive failures abort the cycle
// with ErrUpdateFailed.
func (m *Manager) RefreshDevices(ctx context.Context, deviceIDs []string) error {
	threshold := m.cfg.PollFailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	consecutive := 0
	for _, id := range deviceIDs {
		timestamp, attrs, err := m.client.LatestData(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			consecutive++
			m.logger.Warn("failed to fetch device data", zap.Error(err), zap.String("device_id", id))
			if consecutive > threshold {
				return fmt.Errorf("%w: %d consecutive device fetches failed", ErrUpdateFailed, consecutive)
			}
			continue
		}
		consecutive = 0
		m.store.ApplyPollUpdate(id, timestamp, attrs)
	}
	return nil
}
