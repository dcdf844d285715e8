// Package app wires configuration into a running extraction stack shared by
// the api, cli and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/dvloznov/alertledger/internal/artifact"
	"github.com/dvloznov/alertledger/internal/config"
	infraBQ "github.com/dvloznov/alertledger/internal/infra/bigquery"
	"github.com/dvloznov/alertledger/internal/pipeline"
	"github.com/dvloznov/alertledger/internal/store"
	"github.com/dvloznov/alertledger/internal/store/inmemory"
	"github.com/dvloznov/alertledger/internal/store/sqlite"
	"github.com/dvloznov/alertledger/internal/strategy/model"
	"github.com/dvloznov/alertledger/internal/subscription"
)

// App holds the long-lived collaborators built from configuration.
type App struct {
	Config        *config.Config
	Store         store.Store
	Subscriptions *subscription.Service
	Model         *model.Strategy
	Exporter      *infraBQ.TransactionSink
	Processor     *pipeline.Processor

	gcs *storage.Client
}

// New builds the stack described by cfg. A model that fails to initialise is
// logged and left in place; extraction falls back to rules until it is ready.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Store = st

	tol, err := cfg.Tolerance()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Subscriptions = subscription.NewService(st, subscription.Matcher{
		Tolerance:  tol,
		PeriodDays: cfg.Subscription.PeriodDays,
	})

	opts := pipeline.Options{
		Store:         st,
		Subscriptions: a.Subscriptions,
		Concurrency:   cfg.Queue.Workers,
	}

	if cfg.BigQuery.Enabled {
		sink, err := infraBQ.NewTransactionSink(ctx, infraBQ.TableRef{
			Project: cfg.BigQuery.Project,
			Dataset: cfg.BigQuery.Dataset,
			Table:   cfg.BigQuery.Table,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Exporter = sink
		opts.Exporter = sink
	}

	if cfg.Model.Enabled {
		m, err := a.newModel(ctx, cfg.Model)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Model = m
		opts.Model = m

		if err := m.Initialize(ctx); err != nil {
			var initErr *model.InitError
			ev := log.Warn().Err(err).Str("artifact", cfg.Model.ArtifactPath)
			if errors.As(err, &initErr) {
				ev = ev.Str("reason", string(initErr.Reason))
			}
			ev.Msg("Model strategy unavailable, using rule-based extraction")
		} else {
			log.Info().Str("artifact", cfg.Model.ArtifactPath).Msg("Model strategy ready")
		}
	}

	proc, err := pipeline.NewProcessor(opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Processor = proc
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendMemory, "":
		return inmemory.New(), nil
	default:
		return nil, fmt.Errorf("openStore: unknown backend %q", cfg.Backend)
	}
}

func (a *App) newModel(ctx context.Context, cfg config.ModelConfig) (*model.Strategy, error) {
	var gcs artifact.Source
	if strings.HasPrefix(cfg.ArtifactPath, "gs://") {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("newModel: storage client: %w", err)
		}
		a.gcs = client
		gcs = artifact.NewGCS(client)
	}

	resolver := artifact.NewResolver(gcs)
	return model.New(model.NewGenAIRuntime(resolver), resolver, model.Config{
		ArtifactPath:     cfg.ArtifactPath,
		ResetEvery:       cfg.ResetEvery,
		MaxSessionTokens: cfg.MaxSessionTokens,
		InferenceTimeout: cfg.InferenceTimeout,
	}), nil
}

// ModelActive reports whether extraction currently runs on the model.
func (a *App) ModelActive() bool {
	return a.Model != nil && a.Model.Ready()
}

// ModelState names the model strategy state, or "disabled".
func (a *App) ModelState() string {
	if a.Model == nil {
		return "disabled"
	}
	return a.Model.State().String()
}

// Close releases every collaborator, returning the first error.
func (a *App) Close() error {
	var errs []error
	if a.Model != nil {
		errs = append(errs, a.Model.Close())
	}
	if a.Exporter != nil {
		errs = append(errs, a.Exporter.Close())
	}
	if a.gcs != nil {
		errs = append(errs, a.gcs.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
