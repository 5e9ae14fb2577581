package gizwits

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SessionExpired returns a channel that is closed when the current token
// reaches its expiry. Callers re-acquire the channel after each signal.
func (c *Client) SessionExpired() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifyExpired
}

func (c *Client) signalExpired() {
	c.mu.Lock()
	ch := c.notifyExpired
	c.notifyExpired = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

// StartRefresh runs the background re-authentication task for the life of
// ctx. It must be called once, after a successful Login.
func (c *Client) StartRefresh(ctx context.Context, errChan chan<- error) {
	go c.refreshLoop(ctx, errChan)
}

func (c *Client) refreshLoop(ctx context.Context, errChan chan<- error) {
	for {
		session, ok := c.Session()
		if !ok {
			return
		}
		ttl := session.TTL(c.now())
		if ttl < 0 {
			ttl = 0
		}
		timer := time.NewTimer(ttl)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, ok := c.Session(); !ok {
			// logged out while waiting
			return
		}

		c.logger.Info("session reached expiry, re-authenticating", zap.Time("expired_at", session.ExpiresAt))
		c.signalExpired()

		if err := c.loginWithRetry(ctx); err != nil {
			// Do not retry silently forever; surface to the consumer.
			errChan <- errors.Join(ErrSessionExpired, err)
			return
		}
	}
}

// loginWithRetry attempts re-authentication, allowing a single retry before
// giving up.
func (c *Client) loginWithRetry(ctx context.Context) error {
	lctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	err := c.Login(lctx)
	cancel()
	if err == nil {
		return nil
	}
	c.logger.Warn("re-authentication failed, retrying once", zap.Error(err))

	rctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.Login(rctx)
}
