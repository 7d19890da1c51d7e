package scouter

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunSweeper deletes expired entries from store every interval until ctx
// is done. Failed sweeps are logged and retried on the next tick.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, clock Clock, log logrus.FieldLogger) {
	if interval <= 0 {
		panic("sweep interval must be greater than 0")
	}
	if clock == nil {
		clock = NewClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	ticker, stop := clock.NewTicker(interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker:
			n, err := store.SweepExpired(ctx)
			if err != nil {
				log.WithError(err).Warn("scouter: failed to sweep expired entries")
				continue
			}
			if n > 0 {
				log.WithField("evicted", n).Debug("scouter: swept expired entries")
			}
		}
	}
}
