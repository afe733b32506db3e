// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobrunner/sceneport/internal/adapters/earthengine"
	"github.com/jobrunner/sceneport/internal/adapters/events"
	"github.com/jobrunner/sceneport/internal/adapters/geometry"
	httpAdapter "github.com/jobrunner/sceneport/internal/adapters/http"
	"github.com/jobrunner/sceneport/internal/adapters/ledger"
	"github.com/jobrunner/sceneport/internal/adapters/metrics"
	"github.com/jobrunner/sceneport/internal/adapters/simulated"
	"github.com/jobrunner/sceneport/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/sceneport/internal/adapters/tls"
	"github.com/jobrunner/sceneport/internal/adapters/watcher"
	"github.com/jobrunner/sceneport/internal/application"
	"github.com/jobrunner/sceneport/internal/config"
	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/input"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.ObjectStorage
	Locations     *application.LocationLoader
	Admission     *application.AdmissionController
	Export        *application.ExportService
	Zones         *application.ZoneService
	HealthService *application.HealthService
	Inbox         *application.InboxService
	Sync          *application.SyncService
	Ledger        output.JobLedger
	Metrics       *metrics.Collector
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher

	closers []func() error
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("sceneport")
		metricsCollector = app.Metrics
	}

	// Initialize storage adapter
	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store
	app.Locations = application.NewLocationLoader(store, metricsCollector, logger)

	transformer, err := app.initTransformer(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing transformer: %w", err)
	}

	catalog, jobs, err := initRemote(cfg.Remote, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing remote: %w", err)
	}

	jobLedger, err := app.initLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing ledger: %w", err)
	}
	app.Ledger = jobLedger

	publisher, err := app.initEvents()
	if err != nil {
		return nil, fmt.Errorf("initializing events: %w", err)
	}

	dates, err := cfg.Export.DateRange()
	if err != nil {
		return nil, err
	}

	app.Admission = application.NewAdmissionController(
		jobs,
		jobLedger,
		publisher,
		metricsCollector,
		logger,
		application.AdmissionConfig{
			MaxActive:          cfg.Admission.MaxActive,
			PollInterval:       cfg.Admission.PollInterval,
			MaxWait:            cfg.Admission.MaxWait,
			PollRetries:        cfg.Admission.PollRetries,
			PollBackoffInitial: cfg.Admission.PollBackoffInitial,
			PollBackoffMax:     cfg.Admission.PollBackoffMax,
		},
	)

	regions := application.NewRegionCalculator(transformer, logger)
	scenes := application.NewSceneEnumerator(catalog, cfg.Export.Collection, logger)
	submitter := application.NewJobSubmitter(
		catalog,
		jobs,
		app.Admission,
		jobLedger,
		publisher,
		metricsCollector,
		logger,
		application.SubmitterConfig{
			ImageSize:        cfg.Export.ImageSize,
			FirstSubmitPause: cfg.Export.FirstSubmitPause,
		},
	)

	app.Export = application.NewExportService(
		regions,
		scenes,
		submitter,
		app.Admission,
		publisher,
		metricsCollector,
		logger,
		application.ExportConfig{
			Dates:        dates,
			PatchExtentM: cfg.Export.PatchExtentM,
		},
	)

	app.Zones = application.NewZoneService(regions, logger, cfg.Export.PatchExtentM)
	app.HealthService = application.NewHealthService(app.Admission)

	return app, nil
}

// Run exports the locations listed in the given storage keys, in order.
func (a *App) Run(ctx context.Context, keys []string) (input.RunSummary, error) {
	var locations []domain.Location
	for _, key := range keys {
		locs, err := a.Locations.Load(ctx, key)
		if err != nil {
			return input.RunSummary{}, fmt.Errorf("loading %s: %w", key, err)
		}
		locations = append(locations, locs...)
	}

	return a.Export.Run(ctx, locations)
}

// EnableInbox prepares watch mode: storage sync for every backend and, for
// local storage, a file watcher on the inbox directory.
func (a *App) EnableInbox() error {
	a.Inbox = application.NewInboxService(a.Locations, a.Export, a.Logger, a.Config.Watch.QueueSize)
	a.Sync = application.NewSyncService(a.Storage, a.Inbox, a.Config.Watch.SyncInterval, a.Logger)

	if a.Config.Storage.Type != "local" {
		return nil
	}

	w, err := watcher.New(
		watcher.Config{
			Paths:     []string{a.Config.Storage.LocalPath},
			Debounce:  a.Config.Watch.Debounce,
			Recursive: true,
		},
		a.handleFileEvent,
		a.Logger,
	)
	if err != nil {
		a.Logger.Warn("failed to initialize file watcher, relying on storage sync", "error", err)
		return nil
	}
	a.Watcher = w
	return nil
}

// StartBackground starts the inbox, storage sync and file watcher if they
// were enabled.
func (a *App) StartBackground(ctx context.Context) {
	if a.Inbox != nil {
		a.Inbox.Start(ctx)
	}
	if a.Sync != nil {
		a.Sync.Start(ctx)
	}
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}
}

// PrepareServer builds the status API and, if enabled, its TLS front.
// Call it after EnableInbox so the inbox routes are registered.
func (a *App) PrepareServer() error {
	deps := httpAdapter.Deps{
		Exporter: a.Export,
		Monitor:  a.Admission,
		Health:   a.HealthService,
		Zones:    a.Zones,
		Ledger:   a.Ledger,
	}
	if a.Sync != nil {
		deps.Sync = a.Sync
	}
	if a.Inbox != nil {
		deps.Inbox = a.Inbox
	}
	if a.Metrics != nil {
		deps.Metrics = a.Metrics
	}

	a.HTTPServer = httpAdapter.NewServer(a.Config.Server, deps, a.Logger)

	if !a.Config.TLS.Enabled {
		return nil
	}

	tlsServer, err := tlsAdapter.NewServer(
		tlsAdapter.Config{
			Enabled:  a.Config.TLS.Enabled,
			Domains:  a.Config.TLS.Domains,
			Email:    a.Config.TLS.Email,
			CacheDir: a.Config.TLS.CacheDir,
			Staging:  a.Config.TLS.Staging,
			DNS: tlsAdapter.DNSConfig{
				SubscriptionID:    a.Config.TLS.DNS.SubscriptionID,
				ResourceGroupName: a.Config.TLS.DNS.ResourceGroupName,
				ClientID:          a.Config.TLS.DNS.ClientID,
			},
		},
		a.HTTPServer.Router(),
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("initializing TLS: %w", err)
	}
	a.TLSServer = tlsServer
	return nil
}

// Serve blocks serving the status API. It returns http.ErrServerClosed
// after Shutdown.
func (a *App) Serve() error {
	if a.HTTPServer == nil {
		return errors.New("server not prepared")
	}
	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}
	if a.Sync != nil {
		a.Sync.Stop()
	}
	if a.Inbox != nil {
		a.Inbox.Stop()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("TLS server shutdown error", "error", err)
		}
	} else if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleFileEvent queues location files that appear or change in the inbox.
func (a *App) handleFileEvent(_ context.Context, event watcher.Event) error {
	a.Logger.Info("file event", "path", event.Path, "operation", event.Operation.String())

	if event.Operation == watcher.OpDelete {
		return nil
	}

	local, ok := a.Storage.(*storage.LocalStorage)
	if !ok {
		return nil
	}
	key, err := local.KeyFor(event.Path)
	if err != nil {
		return err
	}
	return a.Inbox.Enqueue(key)
}

func (a *App) initTransformer(ctx context.Context) (output.CoordinateTransformer, error) {
	if a.Config.Geometry.Transformer != "spatialite" {
		return geometry.NewUTMTransformer(), nil
	}

	t, err := geometry.OpenSpatiaLite(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, t.Close)
	return t, nil
}

func (a *App) initLedger(ctx context.Context) (output.JobLedger, error) {
	if !a.Config.Ledger.Enabled {
		return output.NoOpLedger{}, nil
	}

	l, err := ledger.Open(ctx, a.Config.Ledger.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, l.Close)
	return l, nil
}

func (a *App) initEvents() (output.EventPublisher, error) {
	if !a.Config.Events.Enabled {
		return output.NoOpEvents{}, nil
	}

	p, err := events.Connect(a.Config.Events.URL, a.Config.Events.SubjectPrefix, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		p.Close()
		return nil
	})
	return p, nil
}

func initRemote(cfg config.RemoteConfig, logger *slog.Logger) (output.SceneCatalog, output.JobService, error) {
	switch cfg.Type {
	case "earthengine":
		client, err := earthengine.NewClient(earthengine.Config{
			BaseURL:           cfg.EarthEngine.BaseURL,
			Project:           cfg.EarthEngine.Project,
			AccessToken:       cfg.EarthEngine.AccessToken,
			RequestsPerSecond: cfg.EarthEngine.RequestsPerSecond,
			Burst:             cfg.EarthEngine.Burst,
			Timeout:           cfg.EarthEngine.Timeout,
			PageSize:          cfg.EarthEngine.PageSize,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return earthengine.NewCatalog(client), earthengine.NewJobs(client), nil

	case "simulated":
		sim := simulated.Config{
			RevisitDays:   cfg.Simulated.RevisitDays,
			MaxScenes:     cfg.Simulated.MaxScenes,
			CompleteAfter: cfg.Simulated.CompleteAfter,
		}
		return simulated.NewCatalog(sim), simulated.NewJobs(sim), nil

	default:
		return nil, nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
