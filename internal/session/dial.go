package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/caskmate/caskmate/internal/gc"
)

// dialBaseDelay seeds the fibonacci backoff between connect attempts.
const dialBaseDelay = 500 * time.Millisecond

// Dial opens the named connector and connects, retrying transient
// failures with fibonacci backoff up to maxRetries additional attempts.
func Dial(ctx context.Context, connectorName string, maxRetries uint64, logger *slog.Logger) (gc.Conn, error) {
	connector, err := gc.Open(connectorName)
	if err != nil {
		return nil, err
	}

	var conn gc.Conn

	backoff := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(dialBaseDelay))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var dialErr error

		conn, dialErr = connector.Connect(ctx)
		if dialErr != nil {
			logger.Warn("connect attempt failed",
				slog.String("error", dialErr.Error()),
			)

			return retry.RetryableError(dialErr)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: connecting: %w", err)
	}

	return conn, nil
}
