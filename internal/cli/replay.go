package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/store"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Re-execute the transaction log and verify every receipt",
		Long: `Re-execute every logged transaction on fresh in-memory state, at its
logged ledger and timestamp, and compare each receipt id with the logged one.

The configured policy is used, so replaying a log under a different policy
shows exactly where the two diverge.

Exit codes:
  0 - Every receipt reproduced
  1 - Replay diverged
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg := rootOpts.config(cmd)

			ledgerOpts, err := cfg.LedgerOptions()
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeConfig, "invalid ledger options", err)
			}
			log, err := store.Open(cfg.LogPath)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open log", err)
			}
			defer func() {
				if err := log.Close(); err != nil {
					slog.Error("error closing log", "error", err)
				}
			}()

			res, err := host.Replay(cmd.Context(), log, ledger.New(ledgerOpts...))
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeGeneric, "replay failed", err)
			}
			if !res.OK() {
				if err := out.Error(ErrCodeReplayDiverged, "replay diverged from the log", replayView{res}); err != nil {
					return err
				}
				return reported(NewExitError(ExitFailure, "replay diverged"))
			}
			return out.Success(replayView{res})
		},
	}
}
