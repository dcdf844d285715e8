package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/alertledger/internal/app"
	"github.com/dvloznov/alertledger/internal/config"
	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/jobs"
	"github.com/dvloznov/alertledger/internal/jobs/inmemory"
	"github.com/dvloznov/alertledger/internal/logger"
)

// The worker drains a JSONL message feed (one {"sender","body","received_at"}
// object per line) through the job queue. With no -input it reads stdin.
func main() {
	var (
		configPath = flag.String("config", os.Getenv("ALERTLEDGER_CONFIG"), "Path to a YAML config file (or set ALERTLEDGER_CONFIG)")
		input      = flag.String("input", "", "JSONL feed of messages (defaults to stdin)")
	)
	flag.Parse()

	bootLog := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	workers := cfg.QueueWorkers(a.ModelActive())
	jobQueue := inmemory.NewQueue(cfg.Queue.Buffer, jobStore, inmemory.WithWorkers(workers))

	log.Info().Int("workers", workers).Str("model", a.ModelState()).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, jobs.ExtractHandler(a.Processor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Stop feeding on interrupt; queued jobs still drain below.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	feedCtx, stopFeed := context.WithCancel(ctx)
	go func() {
		<-quit
		log.Info().Msg("Interrupt received, stopping feed")
		stopFeed()
	}()

	var in io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatal().Err(err).Str("input", *input).Msg("Failed to open feed")
		}
		defer f.Close()
		in = f
	}

	published := feed(feedCtx, log, in, jobQueue)
	log.Info().Int("published", published).Msg("Feed exhausted, waiting for jobs")

	waitForJobs(ctx, jobStore, published)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	summarise(ctx, log, jobStore)
	log.Info().Msg("Worker service exited")
}

func feed(ctx context.Context, log zerolog.Logger, r io.Reader, pub jobs.Publisher) int {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	published := 0
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			break
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var msg domain.IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Int("line", line).Msg("Skipping malformed feed line")
			continue
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = time.Now()
		}

		if err := pub.PublishExtractMessage(ctx, &jobs.ExtractMessageJob{Message: msg}); err != nil {
			log.Error().Err(err).Int("line", line).Msg("Failed to publish job")
			break
		}
		published++
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Failed to read feed")
	}
	return published
}

// waitForJobs polls the store until every published job is terminal.
func waitForJobs(ctx context.Context, store jobs.JobStore, want int) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		done := 0
		for _, status := range []jobs.JobStatus{jobs.JobStatusCompleted, jobs.JobStatusFailed} {
			list, err := store.ListJobs(ctx, jobs.JobFilter{Status: status})
			if err == nil {
				done += len(list)
			}
		}
		if done >= want {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func summarise(ctx context.Context, log zerolog.Logger, store jobs.JobStore) {
	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		return
	}
	var recorded, rejected, failed int
	for _, j := range all {
		switch {
		case j.Status == jobs.JobStatusFailed:
			failed++
		case j.Result != nil && j.Result.Inserted:
			recorded++
		default:
			rejected++
		}
	}
	log.Info().
		Int("jobs", len(all)).
		Int("recorded", recorded).
		Int("not_recorded", rejected).
		Int("failed", failed).
		Msg("Worker summary")
}
