package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"captioner/internal/config"
	"captioner/internal/delivery"
	"captioner/internal/engine"
	"captioner/internal/language"
	"captioner/internal/logging"
	"captioner/internal/media"
	"captioner/internal/services"
	"captioner/internal/staging"
)

// EnginePool hands out shared inference engines.
type EnginePool interface {
	Acquire(ctx context.Context, kind engine.Kind, cfg engine.Config) (*engine.Handle, error)
}

// Dispatcher delivers terminal notifications.
type Dispatcher interface {
	Deliver(ctx context.Context, n delivery.Notification) delivery.Outcome
}

// Fetcher places the job source inside the workspace.
type Fetcher interface {
	Fetch(ctx context.Context, src media.Source, ws media.Workspace) (string, error)
}

// Normalizer converts the fetched source into engine-ready audio.
type Normalizer interface {
	Normalize(ctx context.Context, source, destination string) (media.Asset, error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher overrides the source fetcher.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.fetcher = f
		}
	}
}

// WithNormalizer overrides the media normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.normalizer = n
		}
	}
}

// Orchestrator runs jobs. It is safe for concurrent use; each Run owns its
// job's resources.
type Orchestrator struct {
	cfg        *config.Config
	pool       EnginePool
	dispatcher Dispatcher
	fetcher    Fetcher
	normalizer Normalizer
	logger     *slog.Logger
	now        func() time.Time
}

// New builds an orchestrator over the shared engine pool.
func New(cfg *config.Config, pool EnginePool, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Orchestrator {
	logger = logging.NewComponentLogger(logger, "workflow")
	o := &Orchestrator{
		cfg:        cfg,
		pool:       pool,
		dispatcher: dispatcher,
		fetcher: media.NewFetcher(cfg.DownloadTimeout(), int64(cfg.Media.MaxDownloadMB)<<20,
			cfg.Delivery.UserAgent, logger),
		normalizer: media.NewNormalizer(cfg.Media.FFmpegBinary, logger),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Run processes one job to its terminal Report. Run never returns an error;
// every failure is mapped into the report.
func (o *Orchestrator) Run(ctx context.Context, job Job) Report {
	job.ensureID()
	if strings.TrimSpace(job.CallbackURL) == "" {
		job.CallbackURL = o.cfg.DefaultCallback(job.ID)
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())

	r := &run{
		o:      o,
		job:    job,
		start:  o.now(),
		logger: logging.WithContext(ctx, o.logger),
		report: Report{
			JobID: job.ID,
			Meta: Meta{
				Device: o.cfg.Engines.Device,
				Phases: make(map[string]float64),
			},
		},
	}
	r.enter(StageReceived)
	r.logger.Info("job received",
		logging.String(logging.FieldEventType, "job_received"),
		logging.String("source", job.Input.Describe()),
		logging.Bool("callback", job.CallbackURL != ""),
	)

	if err := job.Validate(); err != nil {
		return r.fail(ctx, err)
	}
	lang, err := language.Resolve(job.Options.Language, o.cfg.Transcription.DefaultLanguage)
	if err != nil {
		return r.fail(ctx, services.Wrap(services.ErrValidation, "received", "resolve language", "Unknown language", err))
	}
	r.lang = lang
	r.report.Meta.Language = lang
	r.report.Meta.Model = o.modelFor(job)

	ws, err := staging.NewWorkspace(o.cfg.Paths.StagingDir, job.ID, o.logger)
	if err != nil {
		return r.fail(ctx, services.Wrap(services.ErrConfiguration, "received", "create workspace", "Staging directory unavailable", err))
	}
	defer func() { _ = ws.Release() }()

	return r.execute(ctx, ws)
}

func (o *Orchestrator) modelFor(job Job) string {
	if size := strings.TrimSpace(job.Options.Size); size != "" {
		return size
	}
	return o.cfg.Engines.TranscriptionModel
}

func (o *Orchestrator) engineConfig(model, lang string) engine.Config {
	return engine.Config{
		Model:             model,
		Language:          lang,
		Device:            o.cfg.Engines.Device,
		Precision:         o.cfg.Engines.Precision,
		FallbackPrecision: o.cfg.Engines.FallbackPrecision,
		HFToken:           o.cfg.Engines.HFToken,
	}
}

// Warm loads the transcription engine for size without running a job.
func (o *Orchestrator) Warm(ctx context.Context, size string) (engine.Key, string, error) {
	if strings.TrimSpace(size) == "" {
		size = o.cfg.Engines.TranscriptionModel
	}
	h, err := o.pool.Acquire(ctx, engine.KindTranscription, o.engineConfig(size, ""))
	if err != nil {
		return engine.Key{}, "", err
	}
	return h.Key(), h.Precision(), nil
}
