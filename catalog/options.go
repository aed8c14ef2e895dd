package catalog

import (
	"log/slog"
	"runtime"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/cache"
)

// DefaultExtensions are the file extensions scanned in plugin folders.
var DefaultExtensions = []string{".dat", ".sc4model", ".sc4desc", ".sc4lot"}

// DefaultMaxCacheSize limits how much a catalog cache file may decompress to (1 GiB).
const DefaultMaxCacheSize = 1 << 30

type config struct {
	installation string
	plugins      []string
	workers      int
	cache        *cache.LRU
	logger       *slog.Logger
	progress     dbpf.ProgressFunc
	extensions   []string
	families     bool
	maxCacheSize uint64
	archiveOpts  []dbpf.Option
}

func newConfig(opts []Option) config {
	cfg := config{
		workers:      runtime.NumCPU(),
		extensions:   DefaultExtensions,
		families:     true,
		maxCacheSize: DefaultMaxCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}
	cfg.archiveOpts = append([]dbpf.Option{dbpf.WithLogger(cfg.logger)}, cfg.archiveOpts...)
	if cfg.cache != nil {
		cfg.archiveOpts = append(cfg.archiveOpts, dbpf.WithCache(cfg.cache))
	}
	return cfg
}

// Option configures a catalog build.
type Option func(*config)

// WithInstallation sets the game installation folder. Its .dat files load
// before every plugin.
func WithInstallation(dir string) Option {
	return func(c *config) {
		c.installation = dir
	}
}

// WithPlugins adds plugin folders. Folders load in the given order.
func WithPlugins(dirs ...string) Option {
	return func(c *config) {
		c.plugins = append(c.plugins, dirs...)
	}
}

// WithWorkers sets how many files are parsed concurrently.
// Values < 1 use runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithCache shares an LRU between every archive in the catalog.
func WithCache(lru *cache.LRU) Option {
	return func(c *config) {
		c.cache = lru
	}
}

// WithLogger sets the logger for build diagnostics and scan warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgress sets a callback for build progress.
// The callback is invoked from the building goroutine only.
func WithProgress(fn dbpf.ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithExtensions replaces the plugin file extensions. Matching ignores case.
func WithExtensions(exts ...string) Option {
	return func(c *config) {
		c.extensions = exts
	}
}

// WithFamilyIndex enables or disables the family index. It is on by default.
func WithFamilyIndex(enabled bool) Option {
	return func(c *config) {
		c.families = enabled
	}
}

// WithMaxCacheSize limits the decompressed size of a catalog cache file.
func WithMaxCacheSize(n uint64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxCacheSize = n
		}
	}
}

// WithArchiveOptions passes options to every archive the catalog opens.
func WithArchiveOptions(opts ...dbpf.Option) Option {
	return func(c *config) {
		c.archiveOpts = append(c.archiveOpts, opts...)
	}
}
