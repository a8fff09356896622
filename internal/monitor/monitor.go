// Package monitor runs the watch pipeline once: render, extract, capture the
// region, compare with the baseline, publish on change and persist.
//
// Every run ends by flushing its execution log, whatever happened before.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/change"
	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/publisher"
	"github.com/JakeFAU/pagewatch/internal/region"
	"github.com/JakeFAU/pagewatch/internal/render"
	"github.com/JakeFAU/pagewatch/internal/runlog"
	"github.com/JakeFAU/pagewatch/internal/stage"
	"github.com/JakeFAU/pagewatch/internal/state"
)

const tracerName = "github.com/JakeFAU/pagewatch/internal/monitor"

var separator = strings.Repeat("=", 50)

// Extractor finds the alert and date text in a DOM snapshot.
type Extractor interface {
	Extract(html string, log *runlog.Log) stage.Result[extract.Content]
}

// Locator finds and crops the watched region.
type Locator interface {
	Locate(page *render.Page, log *runlog.Log) stage.Result[region.Region]
}

// Fingerprinter hashes the cropped region.
type Fingerprinter interface {
	Region(img image.Image) (string, error)
}

// Baseline loads and saves the persisted state.
type Baseline interface {
	Load(ctx context.Context) (*state.Record, error)
	Save(ctx context.Context, alertText, dateText, fingerprint string) (state.Record, error)
	Location() string
}

// Notifier publishes a change notification.
type Notifier interface {
	Dispatch(ctx context.Context, alertText, dateText, imagePath string, log *runlog.Log) error
}

// ArtifactWriter stores the cropped screenshot.
type ArtifactWriter interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// RunObserver records run metrics.
type RunObserver interface {
	ObserveRun(obs metrics.RunObservation)
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock supplies wall-clock time in the operator's zone.
type Clock interface {
	Now() time.Time
}

// Config holds run-level settings.
type Config struct {
	URL          string
	ArtifactName string
	EventTopic   string
}

// Deps are the collaborators of a Monitor. Events, Metrics and LogSink are
// optional.
type Deps struct {
	Renderer    render.Renderer
	Extractor   Extractor
	Locator     Locator
	Hasher      Fingerprinter
	Baseline    Baseline
	Notifier    Notifier
	Artifacts   ArtifactWriter
	Events      publisher.Publisher
	Metrics     RunObserver
	LogSink     runlog.Sink
	IDGenerator IDGenerator
	Clock       Clock
}

// Monitor executes runs.
type Monitor struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer
}

// New validates deps and builds a Monitor.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Monitor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if cfg.ArtifactName == "" {
		cfg.ArtifactName = "screenshot.png"
	}
	switch {
	case deps.Renderer == nil:
		return nil, fmt.Errorf("renderer is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Locator == nil:
		return nil, fmt.Errorf("locator is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Baseline == nil:
		return nil, fmt.Errorf("baseline store is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	case deps.Artifacts == nil:
		return nil, fmt.Errorf("artifact store is required")
	case deps.IDGenerator == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("monitor"),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Run executes one pass of the pipeline. It never panics: a panic in any
// stage is recovered into OutcomeCritical. The execution log is flushed
// exactly once before Run returns.
func (m *Monitor) Run(ctx context.Context) (report Report) {
	started := m.deps.Clock.Now()
	runID, err := m.deps.IDGenerator.NewID()
	if err != nil {
		runID = fmt.Sprintf("run-%d", started.UnixNano())
	}
	report.RunID = runID

	logger := m.logger.With(zap.String("run_id", runID))
	log := runlog.New(m.deps.Clock, logger)

	ctx, span := m.tracer.Start(ctx, "monitor.Run", trace.WithAttributes(
		attribute.String("pagewatch.run_id", runID),
		attribute.String("pagewatch.url", m.cfg.URL),
	))

	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Sprintf("❌ Critical error: %v", r), zap.Stack("stack"))
			report.Outcome = OutcomeCritical
			report.Err = fmt.Errorf("panic: %v", r)
		}
		span.SetAttributes(attribute.String("pagewatch.outcome", string(report.Outcome)))
		if report.Err != nil {
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.Err.Error())
		}
		span.End()

		if m.deps.Metrics != nil {
			m.deps.Metrics.ObserveRun(metrics.RunObservation{
				Outcome:       string(report.Outcome),
				Changed:       report.Changed,
				PublishFailed: report.Outcome == OutcomePublishFailed,
				Duration:      m.deps.Clock.Now().Sub(started),
				FinishedAt:    m.deps.Clock.Now(),
			})
		}

		// The run context may already be done; the log still goes out.
		flushCtx := context.WithoutCancel(ctx)
		if err := log.Flush(flushCtx, m.deps.LogSink); err != nil {
			report.FlushErr = err
		}
		logger.Info("run finished",
			zap.String("outcome", string(report.Outcome)),
			zap.Bool("changed", report.Changed),
			zap.Bool("published", report.Published),
			zap.Bool("saved", report.Saved),
		)
	}()

	log.Info(separator)
	log.Info("🔍 MONITORING")
	log.Info(separator)

	m.run(ctx, log, &report)
	return report
}

func (m *Monitor) run(ctx context.Context, log *runlog.Log, report *Report) {
	page, err := m.render(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("❌ Error rendering page: %v", err))
		log.Error("❌ Failed to receive important message")
		report.Outcome = OutcomeNoContent
		report.Err = err
		return
	}

	content := m.deps.Extractor.Extract(page.HTML, log)
	if !content.Ok() {
		log.Error("❌ Failed to receive important message")
		report.Outcome = OutcomeNoContent
		report.Err = content.Err
		return
	}

	capture := m.deps.Locator.Locate(page, log)
	if !capture.Ok() {
		log.Error("❌ Failed to create a screenshot or get its hash")
		report.Outcome = OutcomeCaptureFailed
		report.Err = capture.Err
		return
	}
	fingerprint, artifactPath, err := m.storeCapture(ctx, capture.Value, log)
	if err != nil {
		log.Error("❌ Failed to create a screenshot or get its hash")
		report.Outcome = OutcomeCaptureFailed
		report.Err = err
		return
	}
	report.Fingerprint = fingerprint

	baseline, err := m.loadBaseline(ctx, log)
	if err != nil {
		log.Error(fmt.Sprintf("❌ Critical error: %v", err))
		report.Outcome = OutcomeCritical
		report.Err = err
		return
	}

	decision := change.Detect(fingerprint, baseline)
	report.Changed = decision.Changed
	report.PreviousFingerprint = decision.Previous
	log.Info(fmt.Sprintf("🔑 Current screenshot hash: %s", fingerprint))
	log.Info(fmt.Sprintf("🔑 Previous screenshot hash: %s", previousLabel(decision)))

	alert, date := content.Value.AlertText, content.Value.UpdateDate
	if !decision.Changed {
		log.Info("✅ There are no changes. Completion.")
		report.Outcome = OutcomeUnchanged
		m.save(ctx, log, report, alert, date, fingerprint)
		return
	}

	log.Info("🔔 CHANGES IDENTIFIED!")
	if err := m.publish(ctx, alert, date, artifactPath, log); err != nil {
		log.Error("❌ Failed to send update")
		report.Outcome = OutcomePublishFailed
		report.Err = err
		return
	}
	report.Published = true
	report.Outcome = OutcomePublished
	if !m.save(ctx, log, report, alert, date, fingerprint) {
		return
	}
	log.Info("✅ Successful! Update sent")
	m.emitChange(ctx, log, report, alert, date)
}

func (m *Monitor) render(ctx context.Context) (*render.Page, error) {
	ctx, span := m.tracer.Start(ctx, "monitor.render")
	defer span.End()
	page, err := m.deps.Renderer.Render(ctx, m.cfg.URL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("render %s: %w", m.cfg.URL, err)
	}
	if page == nil {
		return nil, fmt.Errorf("render %s: renderer returned no page", m.cfg.URL)
	}
	return page, nil
}

func (m *Monitor) storeCapture(ctx context.Context, r region.Region, log *runlog.Log) (string, string, error) {
	fingerprint, err := m.deps.Hasher.Region(r.Image)
	if err != nil {
		log.Error(fmt.Sprintf("❌ Screenshot creation error: %v", err))
		return "", "", fmt.Errorf("fingerprint region: %w", err)
	}
	data, err := region.EncodePNG(r.Image)
	if err != nil {
		log.Error(fmt.Sprintf("❌ Screenshot creation error: %v", err))
		return "", "", err
	}
	if _, err := m.deps.Artifacts.PutObject(ctx, m.cfg.ArtifactName, "image/png", bytes.NewReader(data)); err != nil {
		log.Error(fmt.Sprintf("❌ Screenshot creation error: %v", err))
		return "", "", fmt.Errorf("store screenshot: %w", err)
	}
	log.Info(fmt.Sprintf("✅ Screenshot created. Hash: %s", fingerprint))
	return fingerprint, m.cfg.ArtifactName, nil
}

// loadBaseline treats a missing or undecodable record as no baseline. Other
// errors abort the run so an unreachable backend is not mistaken for a
// first run.
func (m *Monitor) loadBaseline(ctx context.Context, log *runlog.Log) (*state.Record, error) {
	record, err := m.deps.Baseline.Load(ctx)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, state.ErrNotFound):
		log.Warn(fmt.Sprintf("⚠️ %s not found (first run)", m.deps.Baseline.Location()))
		return nil, nil
	case errors.Is(err, state.ErrCorrupt):
		log.Warn(fmt.Sprintf("⚠️ %s is unreadable, treating as first run", m.deps.Baseline.Location()), zap.Error(err))
		return nil, nil
	default:
		return nil, fmt.Errorf("load baseline: %w", err)
	}
}

func (m *Monitor) publish(ctx context.Context, alert, date, artifactPath string, log *runlog.Log) error {
	ctx, span := m.tracer.Start(ctx, "monitor.publish")
	defer span.End()
	if err := m.deps.Notifier.Dispatch(ctx, alert, date, artifactPath, log); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

func (m *Monitor) save(ctx context.Context, log *runlog.Log, report *Report, alert, date, fingerprint string) bool {
	record, err := m.deps.Baseline.Save(ctx, alert, date, fingerprint)
	if err != nil {
		log.Error(fmt.Sprintf("❌ Critical error: %v", err))
		report.Outcome = OutcomeCritical
		report.Err = err
		return false
	}
	report.Saved = true
	log.Info(fmt.Sprintf("💾 Data saved. Message hash: %s, Screenshot hash: %s", record.MessageHash, record.Fingerprint))
	return true
}

func (m *Monitor) emitChange(ctx context.Context, log *runlog.Log, report *Report, alert, date string) {
	if m.deps.Events == nil {
		return
	}
	event := ChangeEvent{
		RunID:               report.RunID,
		URL:                 m.cfg.URL,
		Fingerprint:         report.Fingerprint,
		PreviousFingerprint: report.PreviousFingerprint,
		AlertText:           alert,
		UpdateDate:          date,
		DetectedAt:          m.deps.Clock.Now(),
	}
	id, err := m.deps.Events.Publish(ctx, m.cfg.EventTopic, event)
	if err != nil {
		log.Warn(fmt.Sprintf("⚠️ Change event not published: %v", err))
		return
	}
	m.logger.Debug("change event published", zap.String("run_id", report.RunID), zap.String("message_id", id))
}

func previousLabel(d change.Decision) string {
	if d.FirstRun() {
		return "none"
	}
	return d.Previous
}
