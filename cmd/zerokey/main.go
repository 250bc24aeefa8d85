// zerokey
// -----------------------------------------------------------------------------
// Command-line front end for ZeroKey social recovery: builds the preimage
// circuit, runs the groth16 lifecycle, exports the on-chain verifier, and
// drives account creation and proof-authorized recovery against a Safe.
// -----------------------------------------------------------------------------
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zerokey/artifact"
	"zerokey/engine"
	"zerokey/internal/config"
	"zerokey/internal/logging"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	reg    *prometheus.Registry
	store  *artifact.Store
	engine *engine.Engine

	closers []func() error
}

func (a *app) open(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.logger = logging.New(logging.Options{Level: a.cfg.LogLevel, Format: a.cfg.LogFormat, File: a.cfg.LogFile})
	logging.RouteGnark(a.logger)
	a.reg = prometheus.NewRegistry()

	var backend artifact.Backend
	switch a.cfg.Store {
	case config.StoreFile:
		fb, err := artifact.NewFileBackend(a.cfg.Dir)
		if err != nil {
			return err
		}
		backend = fb
	case config.StoreBadger, config.StoreMemory:
		dir := a.cfg.Dir
		if a.cfg.Store == config.StoreMemory {
			dir = ""
		}
		bb, err := artifact.OpenBadger(dir, "zerokey/", a.logger)
		if err != nil {
			return err
		}
		backend = bb
		a.closers = append(a.closers, bb.Close)
	}
	a.store = artifact.NewStore(backend, a.logger)

	a.engine = engine.New(engine.NewGroth16Backend(a.logger),
		engine.WithStore(a.store),
		engine.WithLogger(a.logger),
		engine.WithTimeout(a.cfg.Timeout),
		engine.WithRegisterer(a.reg),
		engine.WithSource(a.cfg.Circuit),
	)
	a.closers = append(a.closers, a.engine.Close)
	return a.engine.Initialize(ctx)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
}

func newRootCmd(cfg *config.Config) (*cobra.Command, *app) {
	a := &app{cfg: cfg, logger: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "zerokey",
		Short:         "Zero-knowledge social recovery for smart-contract wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory for artifacts, keys and proofs")
	f.StringVar(&cfg.Store, "store", cfg.Store, "artifact store: file, badger or memory")
	f.StringVar(&cfg.Circuit, "circuit", cfg.Circuit, "circuit source")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-operation timeout")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also log to this rotating file")
	f.StringVar(&cfg.RPC, "rpc", cfg.RPC, "ethereum JSON-RPC endpoint; empty uses an in-memory module")
	f.StringVar(&cfg.PrivateKey, "private-key", cfg.PrivateKey, "hex private key of the submitting account")
	f.StringVar(&cfg.Account, "account", cfg.Account, "Safe account address")
	f.StringVar(&cfg.Module, "module", cfg.Module, "ZeroKey module address")
	f.StringVar(&cfg.MultiSend, "multisend", cfg.MultiSend, "MultiSend contract address")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "receipt polling interval")

	root.AddCommand(
		newSetupCmd(a),
		newProveCmd(a),
		newVerifyCmd(a),
		newExportVerifierCmd(a),
		newCommitmentCmd(a),
		newDemoCmd(a),
	)
	return root, a
}

func main() {
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd(cfg)
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
