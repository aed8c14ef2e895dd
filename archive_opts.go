package dbpf

import (
	"log/slog"
	"time"

	"github.com/meigma/dbpf/cache"
)

// DefaultMaxEntrySize is the default limit for a single decoded entry (256 MiB).
const DefaultMaxEntrySize = 256 << 20

type config struct {
	cache        *cache.LRU
	logger       *slog.Logger
	decoders     Decoders
	now          func() time.Time
	maxEntrySize uint64
}

func newConfig(opts []Option) config {
	cfg := config{
		decoders:     DefaultDecoders(),
		now:          time.Now,
		maxEntrySize: DefaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// Option configures an Archive.
type Option func(*config)

// WithCache registers loaded payloads with a shared LRU so that memory across
// all archives stays within its budget.
func WithCache(c *cache.LRU) Option {
	return func(cfg *config) {
		cfg.cache = c
	}
}

// WithLogger sets the logger for archive diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithDecoders replaces the decoder registry used by Entry.Read.
func WithDecoders(d Decoders) Option {
	return func(cfg *config) {
		cfg.decoders = d
	}
}

// WithClock sets the time source used to stamp saved archives.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}

// WithMaxEntrySize limits the size of a single stored or decoded entry.
// Entries whose index size exceeds it fail to load.
func WithMaxEntrySize(n uint64) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxEntrySize = n
		}
	}
}
