package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/voicedesk/external/audio"
	configloader "github.com/foxseedlab/voicedesk/external/config"
	repositoryimpl "github.com/foxseedlab/voicedesk/external/repository"
	tokenimpl "github.com/foxseedlab/voicedesk/external/token"
	transportimpl "github.com/foxseedlab/voicedesk/external/transport"
	webhookimpl "github.com/foxseedlab/voicedesk/external/webhook"
	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/foxseedlab/voicedesk/internal/metrics"
	"github.com/foxseedlab/voicedesk/internal/session"
	"github.com/samber/do/v2"
)

const endSessionTimeout = 2 * time.Minute

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "agent_id", cfg.AgentID)

	console := newConsoleListener(os.Stderr)
	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg, console)

	os.Exit(runCall(cfg, injector, console))
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config, listener session.Listener) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue[session.Listener](injector, listener)
	metrics.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	tokenimpl.RegisterDI(injector)
	transportimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

// runCall places one call and returns the process exit code.
func runCall(cfg *config.Config, injector do.Injector, console *consoleListener) int {
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		return 1
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		m := do.MustInvoke[*metrics.Metrics](injector)
		go func() {
			if err := m.Serve(sigCtx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server failed", "error", err, "addr", cfg.MetricsAddr)
			}
		}()
	}

	slog.Info("starting call", "agent_id", cfg.AgentID)
	if err := manager.StartSession(sigCtx); err != nil {
		if errors.Is(err, session.ErrStartCancelled) {
			slog.Info("call start interrupted")
			printOutcome(manager.LastOutcome())
			return 0
		}
		slog.Error("failed to start call", "error", err)
		return 1
	}

	var outcome session.Outcome
	select {
	case outcome = <-console.outcomes:
		slog.Info("call ended by remote party")
	case <-sigCtx.Done():
		slog.Info("ending call")
		ctx, cancel := context.WithTimeout(context.Background(), endSessionTimeout)
		defer cancel()
		outcome, err = manager.EndSession(ctx)
		if err != nil && !errors.Is(err, session.ErrNoActiveSession) {
			slog.Error("failed to end call", "error", err)
			return 1
		}
		if errors.Is(err, session.ErrNoActiveSession) {
			outcome = manager.LastOutcome()
		}
	}

	printOutcome(outcome)
	switch outcome.Kind {
	case session.OutcomeSaveFailed:
		return 2
	case session.OutcomeAborted:
		return 1
	default:
		return 0
	}
}

func printOutcome(o session.Outcome) {
	switch o.Kind {
	case session.OutcomeSaved:
		fmt.Printf("call saved: id=%s duration=%ds messages=%d\n", o.RecordID, o.DurationSeconds, o.MessageCount)
	case session.OutcomeSaveFailed:
		fmt.Printf("call ended but save failed: %v\n", o.Err)
	case session.OutcomeDropped:
		fmt.Println("call ended with nothing to save")
	case session.OutcomeCancelled:
		fmt.Println("call cancelled before it connected")
	case session.OutcomeAborted:
		fmt.Println("call could not be connected")
	default:
		fmt.Println("call did not start")
	}
}
