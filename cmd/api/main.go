package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/alertledger/internal/api"
	"github.com/dvloznov/alertledger/internal/api/handlers"
	"github.com/dvloznov/alertledger/internal/app"
	"github.com/dvloznov/alertledger/internal/config"
	"github.com/dvloznov/alertledger/internal/jobs"
	"github.com/dvloznov/alertledger/internal/jobs/inmemory"
	"github.com/dvloznov/alertledger/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("ALERTLEDGER_CONFIG"), "Path to a YAML config file (or set ALERTLEDGER_CONFIG)")
		port       = flag.Int("port", 0, "HTTP server port (overrides http.port)")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	workers := cfg.QueueWorkers(a.ModelActive())
	jobQueue := inmemory.NewQueue(cfg.Queue.Buffer, jobStore, inmemory.WithWorkers(workers))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", workers).Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobs.ExtractHandler(a.Processor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	h := api.Handlers{
		Messages:      handlers.NewMessagesHandler(a.Processor, jobQueue, log),
		Transactions:  handlers.NewTransactionsHandler(a.Store, a.Processor, log),
		Subscriptions: handlers.NewSubscriptionsHandler(a.Subscriptions, log),
		Jobs:          handlers.NewJobsHandler(jobStore, log),
		ModelState:    a.ModelState,
	}
	var advisor handlers.Advisor
	if a.Model != nil {
		advisor = a.Model
	}
	h.Advice = handlers.NewAdviceHandler(advisor, log)

	addr := ":" + strconv.Itoa(cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(h, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Model.InferenceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("model", a.ModelState()).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
