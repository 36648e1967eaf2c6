// Package config loads vidproof settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// VIDPROOF_* environment variables. The result is checked against an
// embedded CUE schema before use.
package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIDPROOF"

// State backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Tracing exporters.
const (
	TracingOff    = "off"
	TracingStdout = "stdout"
	TracingOTLP   = "otlp"
)

type ctxKey string

const configContextKey ctxKey = "vidproof.config"

// WithContext returns a context carrying cfg.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

// FromContext returns the config stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Config holds node and CLI settings.
type Config struct {
	Backend            string `yaml:"backend"            json:"backend"`
	DataDir            string `yaml:"dataDir"            json:"dataDir"            split_words:"true"`
	LogPath            string `yaml:"logPath"            json:"logPath"            split_words:"true"`
	KeyFile            string `yaml:"keyFile"            json:"keyFile"            split_words:"true"`
	Policy             string `yaml:"policy"             json:"policy"`
	TTLLedgers         uint32 `yaml:"ttlLedgers"         json:"ttlLedgers"         envconfig:"TTL_LEDGERS"`
	MinLiveLedgers     uint32 `yaml:"minLiveLedgers"     json:"minLiveLedgers"     split_words:"true"`
	LedgerCloseSeconds uint32 `yaml:"ledgerCloseSeconds" json:"ledgerCloseSeconds" split_words:"true"`
	MetricsAddr        string `yaml:"metricsAddr"        json:"metricsAddr"        split_words:"true"`
	Tracing            string `yaml:"tracing"            json:"tracing"`
}

// Default returns the built-in settings: memory state, a log database in
// the working directory, per-submitter keys and the standard TTL horizon.
func Default() *Config {
	return &Config{
		Backend:            BackendMemory,
		LogPath:            "vidproof.db",
		KeyFile:            "vidproof.key",
		Policy:             string(ledger.PolicyPerSubmitter),
		TTLLedgers:         ledger.DefaultTTLLedgers,
		MinLiveLedgers:     state.DefaultMinLiveLedgers,
		LedgerCloseSeconds: 5,
		MetricsAddr:        ":9102",
		Tracing:            TracingOff,
	}
}

// Load builds a config from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.decodeYAML(buf); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", filepath.Base(path), err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML overlays buf onto cfg. Unknown keys are errors.
func (c *Config) decodeYAML(buf []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LedgerOptions returns the ledger options c selects.
func (c *Config) LedgerOptions() ([]ledger.Option, error) {
	policy, err := ledger.ParsePolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	return []ledger.Option{
		ledger.WithPolicy(policy),
		ledger.WithTTL(ledger.TTL{Threshold: c.TTLLedgers, ExtendTo: c.TTLLedgers}),
	}, nil
}

// LedgerClose is the wall-clock duration of one ledger.
func (c *Config) LedgerClose() time.Duration {
	return time.Duration(c.LedgerCloseSeconds) * time.Second
}

// StatePath returns the backend file or directory under DataDir.
func (c *Config) StatePath() string {
	switch c.Backend {
	case BackendSQLite:
		return filepath.Join(c.DataDir, "state.db")
	case BackendBadger:
		return filepath.Join(c.DataDir, "state")
	}
	return ""
}
