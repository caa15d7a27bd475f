package reconapi

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// WaitReady blocks until the service answers its tool listing, retrying with
// exponential backoff for up to maxWait. It is meant for startup, before the
// first scan is submitted.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxWait
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		if _, err := c.Tools(ctx); err != nil {
			c.logger.Debug(ctx, "recon service not ready, will retry", "attempt", attempt, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return fmt.Errorf("recon service at %s not ready after %d attempts: %w", c.baseURL, attempt, err)
	}

	c.logger.Info(ctx, "recon service ready", "attempts", attempt)
	return nil
}
