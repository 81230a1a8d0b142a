package telegram

import (
	"context"
	"time"

	"github.com/alem-hub/kata-mentor-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// LONG POLLING
// ══════════════════════════════════════════════════════════════════════════════

// UpdateHandler handles one update. Errors are logged and the update is
// not redelivered.
type UpdateHandler func(ctx context.Context, update *Update) error

// pollBackoff spaces getUpdates calls after failures.
var pollBackoff = retry.Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Factor: 2}

// allowedUpdates are the update kinds the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

// StartPolling long-polls getUpdates until ctx is done and hands updates to
// handler one at a time, in order. The offset advances before each update
// is handled.
func (c *Client) StartPolling(ctx context.Context, handler UpdateHandler) error {
	c.logger.Info("long polling started", "timeout_s", c.polling)
	defer c.logger.Info("long polling stopped")

	failures := 0
	for ctx.Err() == nil {
		updates, err := c.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			wait := pollBackoff.Backoff(failures)
			c.logger.Error("getUpdates failed", "error", err, "failures", failures, "retry_in", wait)

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
			continue
		}
		failures = 0

		for i := range updates {
			u := &updates[i]
			c.offset = max(c.offset, u.UpdateID+1)

			if err := handler(ctx, u); err != nil {
				c.logger.Error("update handler failed", "update_id", u.UpdateID, "error", err)
			}
		}
	}
	return nil
}

// getUpdates is called directly, outside the breaker and the retrier:
// the polling loop has its own backoff.
func (c *Client) getUpdates(ctx context.Context) ([]Update, error) {
	var updates []Update
	err := c.post(ctx, "getUpdates", getUpdatesRequest{
		Offset:         c.offset,
		Limit:          100,
		Timeout:        c.polling,
		AllowedUpdates: allowedUpdates,
	}, &updates)
	return updates, err
}
