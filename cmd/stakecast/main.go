// Stakecast — a threshold prediction-market settlement engine.
//
// Architecture:
//
//	main.go               — entry point: loads config, starts engine + API, waits for SIGINT/SIGTERM
//	engine/engine.go      — orchestrator: serializes calls, composes components inside bank journals
//	registry/registry.go  — market records and lifecycle (Open → Expired → Resolved)
//	ledger/ledger.go      — prediction validation, stake totals, claim-ticket minting
//	resolver/resolver.go  — settles expired markets against the oracle price
//	rewards/distributor.go — proportional payouts with idempotent claims
//	hook/adapter.go       — decodes swap payloads and derives conviction stakes
//	oracle/gateway.go     — staleness-bounded price reads over a Hermes-style HTTP source
//	bank/bank.go          — account balances with journaled (rollback-able) transfer sessions
//	store/store.go        — JSON file persistence for the full settlement state
//	api/server.go         — HTTP operations + WebSocket event stream
//
// How settlement works:
//
//	A market asks whether an asset's price ends above a threshold at a fixed
//	expiration. Users stake on Above or Below; each stake mints a claim
//	ticket. After expiration anyone can trigger resolution, which fetches a
//	fresh oracle reading and fixes the winning side. Winners redeem tickets
//	for their principal plus a pro-rata share of the losing pool, minus a
//	protocol fee on profit. Swaps can carry a packed payload that places a
//	stake derived from the swap output in the same atomic unit as the swap.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stakecast/internal/api"
	"stakecast/internal/config"
	"stakecast/internal/engine"
	"stakecast/internal/oracle"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("STAKECAST_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	src := oracle.NewHermesSource(cfg.Oracle.BaseURL, cfg.Oracle.Timeout, logger)
	eng, err := engine.New(cfg, src, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Server.Enabled {
		apiServer = api.NewServer(cfg.Server, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("api started", "url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))
	}

	logger.Info("stakecast settlement engine started",
		"markets", len(eng.ListMarkets()),
		"min_stake", eng.MinStake(),
		"fee_bps", eng.FeeConfig().FeeBps,
		"oracle", cfg.Oracle.BaseURL,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
