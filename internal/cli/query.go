package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/host"
)

// QueryOptions holds flags for the read-only commands.
type QueryOptions struct {
	*RootOptions
	Video     videoFlags
	Submitter string
	KeyFile   string

	Start uint32
	Limit uint32

	Topic    string
	Since    int64
	Lookback int64
	Events   int
}

// withLedger opens the configured ledger for a read-only command.
func (o *QueryOptions) withLedger(cmd *cobra.Command, fn func(*ledgerEnv) error) error {
	out := o.formatter(cmd)
	env, err := openLedger(cmd.Context(), o.config(cmd), envOptions{traceWriter: cmd.ErrOrStderr()})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open ledger", err)
	}
	defer func() {
		if err := env.close(); err != nil {
			slog.Error("error closing ledger", "error", err)
		}
	}()
	return fn(env)
}

// submitter resolves --submitter, falling back to the key file's account.
func (o *QueryOptions) submitter(cmd *cobra.Command) (auth.Address, error) {
	if o.Submitter != "" {
		return auth.ParseAddress(o.Submitter)
	}
	path := o.KeyFile
	if path == "" {
		path = o.config(cmd).KeyFile
	}
	key, err := loadKey(path)
	if err != nil {
		return auth.Address{}, err
	}
	return key.Address(), nil
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read a verification record",
		Long: `Read the record for a video and submitter. Reads are public and do not
refresh the record's lifetime.

Exit codes:
  0 - Record found
  1 - No record
  2 - Command error

Examples:
  vidproof get --file clip.mp4
  vidproof get --video-hash <hex> --submitter <address> --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			hash, err := opts.Video.parsed()
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid video", err)
			}
			submitter, err := opts.submitter(cmd)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid submitter", err)
			}
			return opts.withLedger(cmd, func(env *ledgerEnv) error {
				rec, ok, err := env.host.Read(cmd.Context(), hash, submitter)
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeGeneric, "read failed", err)
				}
				if !ok {
					return out.Fail(ExitFailure, ErrCodeNoRecord, "no record for "+hash.String()+" by "+submitter.Short(), nil)
				}
				return out.Success(recordView{rec})
			})
		},
	}
	opts.Video.register(cmd)
	cmd.Flags().StringVar(&opts.Submitter, "submitter", "", "submitter address (default: the key's account)")
	cmd.Flags().StringVarP(&opts.KeyFile, "key", "k", "", "key file naming the default submitter")
	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of verifications created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			return opts.withLedger(cmd, func(env *ledgerEnv) error {
				n, err := env.host.Count(cmd.Context())
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeGeneric, "count failed", err)
				}
				return out.Success(countView{Count: n})
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a submitter's records",
		Long: `List a page of a submitter's records.

The ledger keeps no index from submitter to records, so the list is
always empty. Use "vidproof events" to browse recent verifications.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			submitter, err := opts.submitter(cmd)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid submitter", err)
			}
			return opts.withLedger(cmd, func(env *ledgerEnv) error {
				page, err := env.host.ListBySubmitter(cmd.Context(), submitter, opts.Start, opts.Limit)
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeGeneric, "list failed", err)
				}
				return out.Success(listView{Submitter: submitter, Records: page})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Submitter, "submitter", "", "submitter address (default: the key's account)")
	cmd.Flags().StringVarP(&opts.KeyFile, "key", "k", "", "key file naming the default submitter")
	cmd.Flags().Uint32Var(&opts.Start, "start", 0, "first record to return")
	cmd.Flags().Uint32Var(&opts.Limit, "limit", 10, "maximum records to return")
	return cmd
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent verification events",
		Long: `Show events from the most recent ledgers, oldest first.

Examples:
  vidproof events
  vidproof events --topic update --lookback 100 --limit 50
  vidproof events --since 1200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			if opts.Lookback <= 0 || opts.Events <= 0 {
				return out.Fail(ExitCommandError, ErrCodeInvalidInput, "--lookback and --limit must be positive", nil)
			}
			return opts.withLedger(cmd, func(env *ledgerEnv) error {
				lookback := opts.Lookback
				if opts.Since > 0 {
					head, _ := env.host.Clock().Current()
					lookback = head - opts.Since
				}
				events, err := env.host.RecentEvents(cmd.Context(), opts.Topic, lookback, opts.Events)
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeGeneric, "reading events failed", err)
				}
				return out.Success(eventsView{Events: events})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Topic, "topic", "submit", `event topic ("" for all)`)
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "first ledger to search (overrides --lookback)")
	cmd.Flags().Int64Var(&opts.Lookback, "lookback", host.DefaultEventLookback, "number of recent ledgers to search")
	cmd.Flags().IntVar(&opts.Events, "limit", host.DefaultEventLimit, "maximum events to show")
	return cmd
}
