package main

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/api"
	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/backend/system"
	"github.com/seantiz/anvil/internal/config"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/gateway"
	"github.com/seantiz/anvil/internal/poller"
	"github.com/seantiz/anvil/internal/stats"
	"github.com/seantiz/anvil/internal/store"
)

const (
	// systemExecutor is the executor id of the OS process backend.
	systemExecutor = "cmd"

	completionBuffer = 1024
	abortGrace       = 2 * time.Second
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("anvil: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"work_dir", cfg.WorkDir,
		"max_processes", cfg.MaxProcesses,
		"strict_invariants", cfg.StrictInvariants,
	)

	specs, err := config.LoadPollers(cfg.PollersFile)
	if err != nil {
		log.Fatalf("failed to load pollers: %v", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := backend.NewRegistry()
	if err := reg.Register(systemExecutor, system.New(cfg.WorkDir, logger)); err != nil {
		log.Fatalf("failed to register executor: %v", err)
	}
	reg.Seal()

	eng := engine.New(engine.Config{
		MaxRunning: cfg.MaxProcesses,
		Strict:     cfg.StrictInvariants,
	}, logger)
	completions := engine.NewChannelListener(completionBuffer)
	unsubscribe := eng.Subscribe(completions)
	defer unsubscribe()

	gw := gateway.New(eng, reg, db, logger)
	pollers := poller.New(specs, gw, logger)

	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Store:    db,
		Registry: reg,
		Engine:   eng,
		Gateway:  gw,
		Broker:   engine.NewResultBroker(),
		Pollers:  pollers,
		Stats:    stats.NewRecorder(),
	}, logger)

	recordCtx, stopRecording := context.WithCancel(context.Background())
	var recorder sync.WaitGroup
	recorder.Go(func() { srv.Record(recordCtx, completions.C()) })

	pollCtx, stopPolling := context.WithCancel(context.Background())
	pollers.Start(pollCtx)

	runErr := srv.Run()

	// Pollers go first so they stop submitting into a closing engine.
	stopPolling()
	pollers.Stop()

	if err := eng.Shutdown(true, cfg.ShutdownTimeout); err != nil {
		logger.Warn("commands outlived shutdown timeout, killing", "error", err)
		eng.Abort()
		if err := eng.Shutdown(true, abortGrace); err != nil {
			logger.Error("engine did not stop after abort", "error", err)
		}
	}

	stopRecording()
	recorder.Wait()

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
	logger.Info("anvil: stopped")
}
