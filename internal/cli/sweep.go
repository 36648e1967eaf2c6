package cli

import (
	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim expired state entries",
		Long: `Delete state entries whose lifetime ended before the current ledger.

The ledger itself never deletes records; only the host reclaims entries
that were not extended in time. With native expiry enabled, badger may
already have dropped some of them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			return opts.withLedger(cmd, func(env *ledgerEnv) error {
				n, err := env.host.Sweep(cmd.Context())
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeGeneric, "sweep failed", err)
				}
				ledgerSeq, _ := env.host.Clock().Current()
				return out.Success(sweepView{Ledger: ledgerSeq, Swept: n})
			})
		},
	}
}
