// Command observatoryd runs The Observatory: a persistent, tick-driven
// multi-agent world with a signed-request Agent Gateway and a read-only
// Observer surface.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/observatory/internal/analytics"
	"github.com/talgya/observatory/internal/config"
	"github.com/talgya/observatory/internal/engine"
	"github.com/talgya/observatory/internal/entropy"
	"github.com/talgya/observatory/internal/flux"
	"github.com/talgya/observatory/internal/gateway"
	"github.com/talgya/observatory/internal/ledger"
	"github.com/talgya/observatory/internal/lifecycle"
	"github.com/talgya/observatory/internal/messaging"
	"github.com/talgya/observatory/internal/ratelimit"
	"github.com/talgya/observatory/internal/replay"
	"github.com/talgya/observatory/internal/trade"
	"github.com/talgya/observatory/internal/verifier"
	"github.com/talgya/observatory/internal/worldstate"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	slog.Info("The Observatory — persistent multi-agent world kernel starting")

	if dir := filepath.Dir(cfg.StateFile); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	if dir := filepath.Dir(cfg.LedgerFile); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	if dir := filepath.Dir(cfg.AnalyticsFile); dir != "." {
		os.MkdirAll(dir, 0755)
	}

	// ── World state ─────────────────────────────────────────────────
	state, err := worldstate.LoadOrNew(cfg.StateFile)
	if err != nil {
		slog.Error("failed to load world state", "error", err)
		os.Exit(1)
	}
	slog.Info("world state ready", "tick", state.CurrentTick(), "agents", len(state.Agents))

	// ── Event ledger ────────────────────────────────────────────────
	led, err := ledger.Open(cfg.LedgerFile)
	if err != nil {
		slog.Error("failed to open event ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("event ledger ready", "path", cfg.LedgerFile, "events", led.Count())

	// ── Trade, accounting, messaging, lifecycle ────────────────────
	trades := trade.NewLedger()
	accounting := trade.NewAccountingLedger()

	var messages *messaging.Bus
	if cfg.RandomOrgKey != "" {
		entropyClient := entropy.NewClient(cfg.RandomOrgKey)
		messages = messaging.NewBusWithSource(entropy.Source{Client: entropyClient})
		slog.Info("message noise drawing from external entropy source")
	} else {
		messages = messaging.NewBus()
		slog.Info("message noise drawing from crypto/rand (RANDOM_ORG_API_KEY not set)")
	}

	lifecycleMgr := lifecycle.NewManager(state)

	// ── Ambient region flux ─────────────────────────────────────────
	regionFlux := flux.New(cfg.FluxSeed)

	// ── Ownership verification channel (optional) ──────────────────
	verifierClient := verifier.NewClient(cfg.VerifierURL, cfg.VerifierAPIKey)
	if verifierClient.Enabled() {
		slog.Info("ownership verification channel enabled", "endpoint", cfg.VerifierURL)
	} else {
		slog.Info("ownership verification channel disabled — claims recorded from operator assertion only")
	}

	// ── Secondary analytics index (optional but on by default) ─────
	var analyticsDB *analytics.DB
	analyticsDB, err = analytics.Open(cfg.AnalyticsFile)
	if err != nil {
		slog.Warn("analytics index unavailable, continuing without it", "error", err)
		analyticsDB = nil
	} else {
		defer analyticsDB.Close()
		slog.Info("analytics index ready", "path", cfg.AnalyticsFile)
	}

	replayEngine := replay.New(led)

	// ── Tick engine ──────────────────────────────────────────────────
	eng := engine.New(state, led, trades, accounting, messages, lifecycleMgr, cfg.StateFile, cfg.TickDuration)
	eng.Flux = regionFlux
	eng.Analytics = analyticsDB

	// ── HTTP surfaces ────────────────────────────────────────────────
	gw := &gateway.Gateway{
		State:            state,
		Ledger:           led,
		Engine:           eng,
		Trades:           trades,
		Accounting:       accounting,
		Messages:         messages,
		Lifecycle:        lifecycleMgr,
		Verifier:         verifierClient,
		Analytics:        analyticsDB,
		Domain:           cfg.Domain,
		Port:             cfg.AgentPort,
		ChallengeLimiter: ratelimit.New(10, 60*time.Second),
		ClaimLimiter:     ratelimit.New(20, 60*time.Second),
	}
	gw.Start()

	observer := &gateway.Observer{
		State:     state,
		Ledger:    led,
		Messages:  messages,
		Replay:    replayEngine,
		Analytics: analyticsDB,
		Port:      cfg.ObserverPort,
	}
	observer.Start()

	// ── Signal handling ──────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	slog.Info("The Observatory is running",
		"agent_gateway", cfg.AgentPort,
		"observer", cfg.ObserverPort,
		"tick_duration", cfg.TickDuration,
	)

	eng.Run()

	slog.Info("final save...")
	if err := state.Save(cfg.StateFile); err != nil {
		slog.Error("final save failed", "error", err)
	}
	slog.Info("The Observatory has stopped")
}
