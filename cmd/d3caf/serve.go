package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/api"
	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/internal/indexer"
	"github.com/screa/d3caf/internal/store"
	"github.com/screa/d3caf/pkg/auction"
	"github.com/screa/d3caf/pkg/chain"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auction on a local block clock and serve its HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.String("listen", cfg.Listen, "HTTP listen address")
	f.String("data-dir", "", "leveldb directory (default: in-memory)")
	f.Duration("block-time", chain.DefaultBlockTime, "Interval between blocks")
	f.Uint64("start-height", 0, "Block height the clock starts at, if above the stored height")
	f.String("owner", "", "Owner of a freshly created auction")
	f.String("database-url", "", "PostgreSQL URL to index events into")
	f.Bool("cors", cfg.CORS, "Allow cross-origin requests")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log, err := setupLogging()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var owner common.Address
	if cfg.Owner != "" {
		if owner, err = crypto.ParseAddress(cfg.Owner); err != nil {
			return fmt.Errorf("--owner: %w", err)
		}
	}

	var s *store.Store
	if cfg.DataDir == "" {
		s, err = store.OpenMemory()
		log.Warn("no --data-dir given, state will not survive a restart")
	} else {
		s, err = store.Open(cfg.DataDir)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sinks := []auction.EventSink{auction.LogSink{Logger: log.Named("events")}}
	if cfg.DatabaseURL != "" {
		pg, err := indexer.NewPostgresSink(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		log.Info("indexing events to postgres")
	}

	clock := chain.NewTickingClock(cfg.StartHeight, cfg.BlockTime)
	a, err := auction.New(s, clock, auction.Options{
		Owner:   owner,
		Logger:  log,
		Metrics: auction.NewMetrics(reg),
		Sinks:   sinks,
	})
	if err != nil {
		return err
	}
	clock.OnTick(func(uint64) {
		if err := a.Checkpoint(); err != nil {
			log.Warn("failed to record block height", zap.Error(err))
		}
	})
	go clock.Run(ctx)

	log.Info("starting auction",
		zap.Duration("blockTime", cfg.BlockTime),
		zap.Uint64("height", clock.Height()),
		zap.String("escrow", a.Address().Hex()),
	)
	srv := api.NewServer(api.Config{ListenAddr: cfg.Listen, EnableCORS: cfg.CORS}, a, reg, log)
	return srv.ListenAndServe(ctx)
}
