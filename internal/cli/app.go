package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/stealth-startup/openexchange/internal/assets"
	"github.com/stealth-startup/openexchange/internal/chain"
	"github.com/stealth-startup/openexchange/internal/chainstate"
	"github.com/stealth-startup/openexchange/internal/config"
	"github.com/stealth-startup/openexchange/internal/ledger"
	"github.com/stealth-startup/openexchange/internal/logging"
	"github.com/stealth-startup/openexchange/internal/metrics"
	"github.com/stealth-startup/openexchange/internal/server"
	"github.com/stealth-startup/openexchange/internal/settlement"
	"github.com/stealth-startup/openexchange/internal/store"
)

// needs lists what a command uses beyond the store.
type needs struct {
	assets bool
	chain  bool
}

// app is the wired service behind one command invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	backend  store.Backend
	states   *chainstate.Store
	registry *prometheus.Registry
	svc      *server.Service
	closers  []io.Closer
}

func openApp(opts *RootOptions, cmd *cobra.Command, n needs) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, logCloser, err := logging.Setup(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	backend, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	a.backend = backend
	a.closers = append(a.closers, backend)
	a.states = chainstate.NewStore(backend, logger)

	table := assets.Table{}
	if n.assets {
		network, err := assets.ParseNetwork(cfg.Assets.Network)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "invalid asset network", err)
		}
		if table, err = assets.LoadDir(cfg.Assets.Dir, network); err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load assets", err)
		}
		logger.Debug("loaded asset init data", "dir", cfg.Assets.Dir, "templates", len(table))
	}

	var source chain.BlockSource = chain.NewMemorySource()
	if n.chain {
		if cfg.Chain.Fixture == "" {
			a.Close()
			return nil, NewExitError(ExitCommandError, "chain.fixture is required to process blocks")
		}
		src, err := chain.LoadFixture(cfg.Chain.Fixture)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load chain", err)
		}
		source = src
	}

	a.registry = prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.On() {
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if m, err = metrics.New(a.registry); err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
	}

	genesis := server.Genesis{
		Height: cfg.Exchange.GenesisHeight,
		Hash:   cfg.Exchange.GenesisHash,
		Addresses: ledger.ExchangeAddresses{
			StateControl: cfg.Exchange.StateControlAddress,
			CreateAsset:  cfg.Exchange.CreateAssetAddress,
			OpenExchange: cfg.Exchange.OpenExchangeAddress,
			PaymentLog:   cfg.Exchange.PaymentLogAddress,
		},
	}
	a.svc = server.New(a.states, source, table, settlement.NewDryRunSender(), genesis,
		server.WithMinConfirmations(cfg.Chain.MinConfirmations),
		server.WithPaymentAddresses(cfg.Settlement.FromAddress, cfg.Settlement.ChangeAddress),
		server.WithSettlementOptions(
			settlement.WithBatchSize(cfg.Settlement.BatchSize),
			settlement.WithFee(cfg.Settlement.Fee),
		),
		server.WithMetrics(m),
		server.WithLogger(logger),
	)
	return a, nil
}

// Close releases the store and the log file.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// fail reports err through f and returns it classified.
func fail(f *OutputFormatter, message string, err error) error {
	err = classify(message, err)
	if f.Format == "json" {
		_ = f.Error(errorCode(err), err.Error(), nil)
	}
	return err
}

// withApp opens the app, runs fn and closes the app.
func withApp(opts *RootOptions, cmd *cobra.Command, n needs, fn func(ctx context.Context, a *app, f *OutputFormatter) error) error {
	a, err := openApp(opts, cmd, n)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("error closing store", "error", cerr)
		}
	}()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.logger = a.logger.With("run", a.svc.RunID())
	return fn(ctx, a, a.formatter(opts, cmd))
}

func describe(res server.Result, st *chainstate.ChainedState) string {
	if st == nil {
		return string(res)
	}
	return fmt.Sprintf("%s %d %s", res, st.Height(), st.Hash())
}
