package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ir"
)

// maxLineBytes bounds one transaction line read by node.
const maxLineBytes = 1 << 20

// nodeLine is one line written by node for each transaction read.
type nodeLine struct {
	Receipt *ir.Receipt `json:"receipt,omitempty"`
	Error   *CLIError   `json:"error,omitempty"`
}

// NewNodeCommand creates the node command.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run the ledger over a stream of signed transactions",
		Long: `Run the single-writer host. Signed transactions are read as JSON lines
from stdin (as printed by "create --sign-only"), applied in order, and one
JSON line is written to stdout per transaction with its receipt or error.

Prometheus metrics are served on /metrics while the node runs. The node
stops at end of input or on SIGINT/SIGTERM.

Examples:
  vidproof node < txs.jsonl
  vidproof node --metrics-addr :9102 --backend sqlite --data-dir ./state`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg := rootOpts.config(cmd)
			if metricsAddr == "" {
				metricsAddr = cfg.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			env, err := openLedger(ctx, cfg, envOptions{registry: registry, traceWriter: cmd.ErrOrStderr()})
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open ledger", err)
			}
			defer func() {
				if err := env.close(); err != nil {
					slog.Error("error closing ledger", "error", err)
				}
			}()

			srv, err := serveMetrics(metricsAddr, registry)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to serve metrics", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					slog.Error("error stopping metrics server", "error", err)
				}
			}()

			env.start(ctx)
			slog.Info("node started", "log", cfg.LogPath, "backend", cfg.Backend, "policy", cfg.Policy, "metrics", metricsAddr)

			n, err := streamTransactions(ctx, env.host, cmd)
			slog.Info("node stopped", "transactions", n)
			if err != nil && !errors.Is(err, context.Canceled) {
				return out.Fail(ExitCommandError, ErrCodeGeneric, "node failed", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for /metrics (default from config)")
	return cmd
}

// serveMetrics starts an HTTP server for registry on addr. An empty addr
// or "off" disables it.
func serveMetrics(addr string, registry *prometheus.Registry) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if addr == "" || addr == "off" {
		return srv, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv, nil
}

// streamTransactions submits each stdin line in order and writes one
// result line per input line. It returns the number of lines handled.
func streamTransactions(ctx context.Context, h *host.Host, cmd *cobra.Command) (int, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	enc := json.NewEncoder(cmd.OutOrStdout())

	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		n++
		var result nodeLine
		var tx ir.Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			result.Error = &CLIError{Code: ErrCodeInvalidInput, Message: "invalid transaction: " + err.Error()}
		} else if receipt, err := h.Submit(ctx, tx); err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			result.Error = submitError(err)
		} else {
			result.Receipt = &receipt
		}
		if err := enc.Encode(result); err != nil {
			return n, err
		}
	}
	return n, scanner.Err()
}

func submitError(err error) *CLIError {
	var he *host.Error
	if errors.As(err, &he) {
		return &CLIError{Code: ErrCodeRefused, Message: he.Error(), Details: map[string]string{"reason": string(he.Code)}}
	}
	return &CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}
