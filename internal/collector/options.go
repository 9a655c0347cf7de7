package collector

import (
	"log/slog"
	"time"
)

// Option configures the ambient dependencies of an adapter.
type Option func(*common)

// common holds what every adapter needs besides its fetcher.
type common struct {
	logger *slog.Logger
	now    func() time.Time
}

func newCommon(opts []Option) common {
	c := common{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger sets the logger used for skipped pages and records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *common) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, used to stamp AnnouncementDate.
func WithClock(now func() time.Time) Option {
	return func(c *common) {
		if now != nil {
			c.now = now
		}
	}
}

// stamp returns the current time as a pointer for AnnouncementDate.
func (c common) stamp() *time.Time {
	t := c.now().UTC()
	return &t
}
