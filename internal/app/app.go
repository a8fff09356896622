// Package app initializes and holds the services of a monitor run, acting as
// a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/fingerprint"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/notify"
	"github.com/JakeFAU/pagewatch/internal/publisher"
	"github.com/JakeFAU/pagewatch/internal/publisher/pubsub"
	"github.com/JakeFAU/pagewatch/internal/region"
	"github.com/JakeFAU/pagewatch/internal/render"
	"github.com/JakeFAU/pagewatch/internal/runlog"
	"github.com/JakeFAU/pagewatch/internal/state"
	statepg "github.com/JakeFAU/pagewatch/internal/state/postgres"
	"github.com/JakeFAU/pagewatch/internal/storage/gcs"
	"github.com/JakeFAU/pagewatch/internal/storage/local"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

// Option customises NewApp, mostly for tests.
type Option func(*options)

type options struct {
	renderer      render.Renderer
	httpClient    *http.Client
	gcsOptions    []option.ClientOption
	pubsubOptions []option.ClientOption
}

// WithRenderer replaces the chromedp renderer.
func WithRenderer(r render.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithHTTPClient sets the client used for Bot API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithGCSOptions appends client options for the GCS state backend.
func WithGCSOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOptions = append(o.gcsOptions, opts...) }
}

// WithPubSubOptions appends client options for the change-event publisher.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.pubsubOptions = append(o.pubsubOptions, opts...) }
}

// App holds the services shared by a run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	monitor  *monitor.Monitor
	metrics  *metrics.Recorder
	closers  []func(context.Context) error
	location string
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Metrics returns the run metrics recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// StateLocation describes where the baseline lives.
func (a *App) StateLocation() string {
	return a.location
}

// NewApp wires every component from cfg. It fails fast if a backend cannot
// be initialised; nothing is contacted until Run except the configured state
// database, whose schema is ensured here.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	logger.Info("Initializing application services...")

	_, shutdownTracing, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	clock, err := system.NewInZone(cfg.Logging.Timezone)
	if err != nil {
		return nil, err
	}
	hasher := fingerprint.New()

	renderer := o.renderer
	if renderer == nil {
		renderer, err = render.NewChromedp(render.Config{
			ViewportWidth:     cfg.Render.ViewportWidth,
			ViewportHeight:    cfg.Render.ViewportHeight,
			NavigationTimeout: cfg.Render.NavigationTimeout,
			IdleTimeout:       cfg.Render.IdleTimeout,
			SettleDelay:       cfg.Render.SettleDelay,
			UserAgent:         cfg.Render.UserAgent,
			ExecPath:          cfg.Render.ExecPath,
			NoSandbox:         cfg.Render.NoSandbox,
		}, logger.Named("render"))
		if err != nil {
			return nil, fmt.Errorf("init renderer: %w", err)
		}
	}

	extractor, err := extract.New(extract.Config{
		AlertMarkers: cfg.Extract.AlertMarkers,
		DateMarker:   cfg.Extract.DateMarker,
		Tags:         cfg.Extract.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	locator, err := region.New(region.Config{
		StartAnchor: cfg.Region.StartAnchor,
		EndAnchor:   cfg.Region.EndAnchor,
		EndMargin:   cfg.Region.EndMargin,
	})
	if err != nil {
		return nil, fmt.Errorf("init region locator: %w", err)
	}

	artifacts, err := local.New(local.Config{BaseDir: cfg.Artifact.Dir})
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}

	backend, err := a.stateBackend(ctx, o)
	if err != nil {
		return nil, err
	}
	a.location = backend.Location()
	store, err := state.New(backend, hasher, clock)
	if err != nil {
		return nil, err
	}

	tg, err := notify.NewTelegram(notify.TelegramConfig{
		BaseURL:        cfg.Telegram.BaseURL,
		BotToken:       cfg.Telegram.BotToken,
		PhotoTimeout:   cfg.Telegram.PhotoTimeout,
		MessageTimeout: cfg.Telegram.MessageTimeout,
	}, o.httpClient)
	if err != nil {
		return nil, fmt.Errorf("init telegram: %w", err)
	}
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		ChannelID:    cfg.Telegram.ChannelID,
		PageURL:      cfg.Target.URL,
		SubscribeURL: cfg.Target.SubscribeURL,
	}, tg, artifacts)
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	var logSink runlog.Sink
	if cfg.Telegram.LogChannelID != "" {
		logSink = notify.NewLogChannel(tg, cfg.Telegram.LogChannelID)
	} else {
		logger.Warn("telegram.log_channel_id is not set; execution logs stay local")
	}

	var events publisher.Publisher
	if cfg.PubSub.Enabled() {
		logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		pub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, o.pubsubOptions...)
		if err != nil {
			return nil, fmt.Errorf("init change events: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		events = pub
	}

	a.metrics = metrics.New(cfg.Target.URL)

	a.monitor, err = monitor.New(monitor.Config{
		URL:          cfg.Target.URL,
		ArtifactName: cfg.Artifact.Name,
		EventTopic:   cfg.PubSub.TopicName,
	}, monitor.Deps{
		Renderer:    renderer,
		Extractor:   extractor,
		Locator:     locator,
		Hasher:      hasher,
		Baseline:    store,
		Notifier:    dispatcher,
		Artifacts:   artifacts,
		Events:      events,
		Metrics:     a.metrics,
		LogSink:     logSink,
		IDGenerator: uuid.New(),
		Clock:       clock,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init monitor: %w", err)
	}

	logger.Info("Application services initialized successfully.", zap.String("state", a.location))
	return a, nil
}

func (a *App) stateBackend(ctx context.Context, o options) (state.Backend, error) {
	cfg := a.cfg.State
	switch cfg.Backend {
	case config.BackendFile:
		blobs, err := local.New(local.Config{BaseDir: filepath.Dir(cfg.Path)})
		if err != nil {
			return nil, fmt.Errorf("init state directory: %w", err)
		}
		return state.NewBlobBackend(blobs, filepath.Base(cfg.Path), cfg.Path)
	case config.BackendGCS:
		clientOpts := append([]option.ClientOption(nil), o.gcsOptions...)
		if cfg.GCS.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}
		client, err := gcsstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using GCS state backend", zap.String("bucket", cfg.GCS.Bucket))
		label := fmt.Sprintf("gs://%s/%s", cfg.GCS.Bucket, joinObject(cfg.GCS.Prefix, cfg.GCS.Object))
		return state.NewBlobBackend(blobs, cfg.GCS.Object, label)
	case config.BackendPostgres:
		a.logger.Info("Connecting to PostgreSQL...")
		backend, err := statepg.New(ctx, statepg.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres state: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { backend.Close(); return nil })
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown state backend: %s", cfg.Backend)
	}
}

func joinObject(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Run executes one monitor pass and exports metrics when configured.
func (a *App) Run(ctx context.Context) monitor.Report {
	report := a.monitor.Run(ctx)
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	return report
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
