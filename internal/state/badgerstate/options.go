package badgerstate

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for badger and GC messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDataDir makes dir the badger directory. Without it the store is in-memory.
func WithDataDir(dir string) Option {
	return func(s *Store) {
		s.dataDir = dir
	}
}

// WithGc enables the periodic value log GC. Ignored for in-memory stores.
func WithGc(enabled bool) Option {
	return func(s *Store) {
		s.gcEnabled = enabled
	}
}

// WithMinLiveLedgers sets the lifetime of newly created entries.
func WithMinLiveLedgers(n uint32) Option {
	return func(s *Store) {
		s.minLive = n
	}
}

// WithNativeExpiry makes badger expire entries on its own once their
// remaining ledgers have elapsed at closeTime per ledger. Zero disables it.
func WithNativeExpiry(closeTime time.Duration) Option {
	return func(s *Store) {
		s.closeTime = closeTime
	}
}

// WithPromRegistry registers the store's metrics with registry.
func WithPromRegistry(registry prometheus.Registerer) Option {
	return func(s *Store) {
		s.promRegistry = registry
	}
}
