package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bt2c-network/bt2c-core/chain"
	"github.com/bt2c-network/bt2c-core/chaincfg"
	"github.com/bt2c-network/bt2c-core/ledgermetrics"
	"github.com/bt2c-network/bt2c-core/mempool"
	"github.com/bt2c-network/bt2c-core/ulog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func runNode(v *viper.Viper) error {
	logger := ulog.NewConsole(parseLevel(v.GetString("log_level")))
	logger.Infof("[%s] starting version=%s commit=%s", progname, orDefault(version, "dev"), orDefault(commit, "unknown"))

	network, err := chaincfg.ParseNetworkTypeEnv(v.GetString("network"))
	if err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	params, err := chaincfg.ForNetwork(network)
	if err != nil {
		return fmt.Errorf("unknown network parameters: %w", err)
	}

	v.SetConfigName(progname)
	v.AddConfigPath(v.GetString("config_dir"))
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("failed to read config: %w", err)
		}
		logger.Warnf("[%s] no config file found in %s, relying on flags/env/defaults", progname, v.GetString("config_dir"))
	}

	cfg, err := chaincfg.Load(v, network)
	if err != nil {
		return fmt.Errorf("failed to build chain config: %w", err)
	}

	var metrics ledgermetrics.Sink = ledgermetrics.Nop{}
	var promSink *ledgermetrics.Prometheus
	if v.GetBool("metrics_enabled") {
		promSink = ledgermetrics.NewPrometheus()
		metrics = promSink
	}

	ledger, err := chain.NewGenesis(params, chain.WithLogger(logger), chain.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to construct genesis ledger: %w", err)
	}

	mp := mempool.New(ledger.NewChainView(),
		mempool.WithLogger(logger),
		mempool.WithMetrics(metrics),
		mempool.WithMaxBytes(cfg.MaxMempoolSize),
		mempool.WithExpirySchedule(cfg.MempoolExpiryDefault, cfg.MempoolExpiryLowFee, cfg.MempoolExpirySuspicious),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mp.Start(ctx)
	defer mp.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health/liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/health/readiness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "height=%d network=%s\n", ledger.Height(), network)
	})
	mux.HandleFunc("/metrics/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap := mp.Snapshot()
		chainMetrics := ledger.Metrics()
		_, _ = fmt.Fprintf(w, "chain_height=%d\nmempool_count=%d\nmempool_utilization=%.4f\nvalidators=%d\ntotal_staked=%s\n",
			chainMetrics.Height, snap.Count, snap.Utilization, chainMetrics.ValidatorCount, chainMetrics.TotalStaked)
	})
	if promSink != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(promSink.Registry(), promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:         v.GetString("health_addr"),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()
	logger.Infof("[%s] health endpoint listening on %s", progname, server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Infof("[%s] shutdown signal received", progname)
	case err := <-serverErrCh:
		logger.Errorf("[%s] health server failed: %v", progname, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
