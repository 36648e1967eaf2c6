package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/host"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

// SubmitOptions holds flags shared by create and update.
type SubmitOptions struct {
	*RootOptions
	Video      videoFlags
	KeyFile    string
	Submitter  string
	Nonce      int64
	SignOnly   bool
	Confidence int64
	AI         bool
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a verification verdict for a video",
		Long: `Sign and apply a create transaction.

The video is named by hash, by file (its SHA-256) or by URL (SHA-256 of the
trimmed, lowercased URL). The signing key's account is the submitter.

Exit codes:
  0 - Record created
  1 - Rejected by the ledger (see error code E1xx)
  2 - Command error

Examples:
  vidproof create --file clip.mp4 --ai --confidence 85
  vidproof create --url https://example.com/v.mp4 --confidence 10
  vidproof create --video-hash <hex> --confidence 90 --sign-only >> txs.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, ir.OpCreate, cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.AI, "ai", false, "the video is AI-generated")
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change the confidence score of your verification",
		Long: `Sign and apply an update transaction. Only the confidence score and
timestamp change; the verdict and record id are kept.

Examples:
  vidproof update --file clip.mp4 --confidence 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, ir.OpUpdate, cmd)
		},
	}
	opts.register(cmd)
	return cmd
}

func (o *SubmitOptions) register(cmd *cobra.Command) {
	o.Video.register(cmd)
	cmd.Flags().StringVarP(&o.KeyFile, "key", "k", "", "signing key file (default from config)")
	cmd.Flags().StringVar(&o.Submitter, "submitter", "", "account to act for (default: the key's account)")
	cmd.Flags().Int64Var(&o.Nonce, "nonce", 0, "transaction nonce (default: next unused)")
	cmd.Flags().BoolVar(&o.SignOnly, "sign-only", false, "print the signed transaction instead of applying it")
	cmd.Flags().Int64Var(&o.Confidence, "confidence", 0, "confidence score 0-100")
	_ = cmd.MarkFlagRequired("confidence")
}

func runSubmit(opts *SubmitOptions, op ir.Op, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()
	cfg := opts.config(cmd)

	keyPath := opts.KeyFile
	if keyPath == "" {
		keyPath = cfg.KeyFile
	}
	key, err := loadKey(keyPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeKeyFile, "failed to load key", err)
	}
	videoHash, err := opts.Video.raw()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to hash video", err)
	}
	submitter := opts.Submitter
	if submitter == "" {
		submitter = key.Address().String()
	}
	call := ledger.Call{
		Op:              op,
		Submitter:       submitter,
		VideoHash:       videoHash,
		IsAIGenerated:   opts.AI,
		ConfidenceScore: opts.Confidence,
	}

	env, err := openLedger(ctx, cfg, envOptions{traceWriter: cmd.ErrOrStderr()})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open ledger", err)
	}
	defer func() {
		if err := env.close(); err != nil {
			slog.Error("error closing ledger", "error", err)
		}
	}()

	nonce := opts.Nonce
	if nonce == 0 {
		if nonce, err = env.log.NextNonce(ctx, key.Address().String()); err != nil {
			return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to pick nonce", err)
		}
	}
	tx, err := host.SignTransaction(key, call, nonce)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to sign transaction", err)
	}
	out.VerboseLog("signed %s transaction %s with nonce %d", op, tx.ID, nonce)

	if opts.SignOnly {
		// One JSON line, ready for vidproof node.
		line, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(line))
		return err
	}

	env.start(ctx)
	receipt, err := env.host.Submit(ctx, tx)
	if err != nil {
		var he *host.Error
		if errors.As(err, &he) {
			return out.Fail(ExitFailure, ErrCodeRefused, "transaction refused", err)
		}
		return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to apply transaction", err)
	}
	if !receipt.Succeeded() {
		return out.Rejected(receiptView{receipt})
	}
	return out.Success(receiptView{receipt})
}
