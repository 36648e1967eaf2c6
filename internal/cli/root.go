package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Debug      bool
	Format     string // "json" | "text"
	ConfigPath string

	// Overrides applied on top of the loaded config.
	LogPath string
	Backend string
	DataDir string
	Policy  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the vidproof command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vidproof",
		Short: "vidproof - video authenticity ledger",
		Long: `A ledger of signed video-authenticity attestations.

Each attestation records a verdict (AI-generated or not) and a confidence
score for a video hash. Transactions are signed with ed25519 keys, applied
one at a time, and logged so that the whole ledger can be replayed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&opts.Debug, "debug", "D", false, "enable debug logging")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	pf.StringVar(&opts.LogPath, "db", "", "path to the transaction log database (overrides config)")
	pf.StringVar(&opts.Backend, "backend", "", "state backend: memory|badger|sqlite (overrides config)")
	pf.StringVar(&opts.DataDir, "data-dir", "", "state directory for badger and sqlite (overrides config)")
	pf.StringVar(&opts.Policy, "policy", "", "key policy: per-submitter|global (overrides config)")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewNodeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig reads the config file and environment, then applies flag
// overrides and validates the result again.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogPath != "" {
		cfg.LogPath = opts.LogPath
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Policy != "" {
		cfg.Policy = opts.Policy
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// config returns the config PersistentPreRunE stored in cmd's context.
func (o *RootOptions) config(cmd *cobra.Command) *config.Config {
	if cfg := config.FromContext(cmd.Context()); cfg != nil {
		return cfg
	}
	return config.Default()
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
