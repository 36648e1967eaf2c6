package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/vidproof/internal/config"
	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/state/badgerstate"
	"github.com/roach88/vidproof/internal/state/sqlitestate"
	"github.com/roach88/vidproof/internal/store"
)

// ledgerEnv is an opened log, state backend and host.
type ledgerEnv struct {
	cfg      *config.Config
	log      *store.Store
	backend  state.Backend
	host     *host.Host
	contract *ledger.Contract

	shutdownTracing func(context.Context) error
	cancel          context.CancelFunc
	done            chan error
}

type envOptions struct {
	registry    prometheus.Registerer
	traceWriter io.Writer
	timeSource  host.TimeSource
}

// openLedger opens everything cfg names and brings the host clock to the
// head of the log.
//
// Memory state is rebuilt by replaying the log. Persistent state already
// reflects the log, so the host only resumes the clock.
func openLedger(ctx context.Context, cfg *config.Config, o envOptions) (_ *ledgerEnv, err error) {
	e := &ledgerEnv{cfg: cfg}
	defer func() {
		if err != nil {
			e.close()
		}
	}()

	traceOut := o.traceWriter
	if traceOut == nil {
		traceOut = os.Stderr
	}
	tp, shutdown, err := setupTracing(ctx, cfg.Tracing, traceOut)
	if err != nil {
		return nil, err
	}
	e.shutdownTracing = shutdown

	if dir := filepath.Dir(cfg.LogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	if e.log, err = store.Open(cfg.LogPath); err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	if e.backend, err = openBackend(cfg, o.registry); err != nil {
		return nil, err
	}

	ledgerOpts, err := cfg.LedgerOptions()
	if err != nil {
		return nil, err
	}
	e.contract = ledger.New(ledgerOpts...)
	hostOpts := []host.Option{
		host.WithLog(e.log),
		host.WithPromRegistry(o.registry),
		host.WithTracerProvider(tp),
	}
	if o.timeSource != nil {
		hostOpts = append(hostOpts, host.WithTimeSource(o.timeSource))
	}
	e.host = host.New(e.backend, e.contract, hostOpts...)

	if cfg.Backend == config.BackendMemory {
		res, err := e.host.Restore(ctx)
		if err != nil {
			return nil, err
		}
		if !res.OK() {
			return nil, fmt.Errorf("log does not replay under the configured policy: %d receipt(s) differ, first at ledger %d",
				len(res.Mismatches), res.Mismatches[0].Ledger)
		}
		slog.Debug("state restored from log", "applied", res.Applied)
		return e, nil
	}
	if err := e.host.Resume(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func openBackend(cfg *config.Config, registry prometheus.Registerer) (state.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return state.NewMemory(state.WithMinLiveLedgers(cfg.MinLiveLedgers)), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		s, err := sqlitestate.Open(cfg.StatePath(), sqlitestate.WithMinLiveLedgers(cfg.MinLiveLedgers))
		if err != nil {
			return nil, fmt.Errorf("open sqlite state: %w", err)
		}
		return s, nil
	case config.BackendBadger:
		s, err := badgerstate.New(
			badgerstate.WithDataDir(cfg.StatePath()),
			badgerstate.WithLogger(slog.Default()),
			badgerstate.WithGc(true),
			badgerstate.WithMinLiveLedgers(cfg.MinLiveLedgers),
			badgerstate.WithNativeExpiry(cfg.LedgerClose()),
			badgerstate.WithPromRegistry(registry),
		)
		if err != nil {
			return nil, fmt.Errorf("open badger state: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
}

// start runs the host loop until close.
func (e *ledgerEnv) start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan error, 1)
	go func() { e.done <- e.host.Run(ctx) }()
}

// close stops the host and releases everything in reverse order.
func (e *ledgerEnv) close() error {
	var errs []error
	if e.cancel != nil {
		e.cancel()
		if err := <-e.done; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		e.cancel = nil
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Close())
	}
	if e.log != nil {
		errs = append(errs, e.log.Close())
	}
	if e.shutdownTracing != nil {
		errs = append(errs, e.shutdownTracing(context.Background()))
	}
	return errors.Join(errs...)
}
