package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"captioner/internal/delivery"
	"captioner/internal/engine"
	"captioner/internal/health"
	"captioner/internal/language"
	"captioner/internal/logging"
	"captioner/internal/media"
	"captioner/internal/services"
	"captioner/internal/staging"
	"captioner/internal/subtitles"
	"captioner/internal/timeline"
)

const normalizedAudioName = "audio16k.wav"

// run is the mutable state of one Orchestrator.Run call.
type run struct {
	o      *Orchestrator
	job    Job
	lang   string
	start  time.Time
	logger *slog.Logger
	report Report

	stage      Stage
	stageStart time.Time
	issues     []string
}

func (r *run) enter(stage Stage) {
	now := r.o.now()
	if r.stage != "" && !r.stage.Terminal() && r.stage != StageReceived {
		r.report.Meta.Phases[strings.ToLower(string(r.stage))] = seconds(now.Sub(r.stageStart))
	}
	r.stage = stage
	r.stageStart = now
	r.report.Trail = append(r.report.Trail, stage)
	if !stage.Terminal() {
		r.logger.Debug("stage started", logging.String(logging.FieldStage, strings.ToLower(string(stage))))
	}
}

func (r *run) stageContext(ctx context.Context) context.Context {
	return services.WithStage(ctx, strings.ToLower(string(r.stage)))
}

func (r *run) execute(ctx context.Context, ws *staging.Workspace) Report {
	r.enter(StageNormalizing)
	asset, err := r.normalize(r.stageContext(ctx), ws)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.report.Meta.DurationSec = asset.DurationSec

	r.enter(StageTranscribing)
	transcript, err := r.transcribe(r.stageContext(ctx), asset)
	if err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StageAligning)
	words, err := r.align(r.stageContext(ctx), asset, transcript)
	if err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StageDiarizing)
	speakers := r.diarize(r.stageContext(ctx), asset, transcript)

	r.enter(StageAssembling)
	segments := timeline.Assemble(transcript.Segments, words, speakers)

	r.enter(StageReporting)
	rep := health.CheckWith(segments, asset.DurationSec, health.Options{
		MaxCPS:            r.o.cfg.Health.MaxCPS,
		DurationTolerance: r.o.cfg.Health.DurationToleranceSeconds,
	})
	for _, issue := range r.issues {
		rep.AddIssue(issue)
	}
	srt := subtitles.Format(segments)
	if problems := subtitles.Validate(srt, asset.DurationSec); len(problems) > 0 {
		logging.WarnWithContext(r.logger, "subtitle output failed validation", "subtitle_validation",
			logging.Any("problems", problems),
			logging.String(logging.FieldImpact, "players may render some cues incorrectly"),
		)
	}
	r.report.Status = delivery.StatusCompleted
	r.report.Segments = segments
	r.report.Health = &rep
	r.report.SRT = srt
	r.report.Meta.TotalSec = seconds(r.o.now().Sub(r.start))

	r.deliver(ctx, delivery.Notification{Status: delivery.StatusCompleted, Output: r.report.output()})
	r.finish(StageDone)
	r.logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Int("segments", len(segments)),
		logging.Int("speakers", rep.SpeakerCount),
		logging.Int("issues", len(rep.Issues)),
		logging.Float64("total_sec", r.report.Meta.TotalSec),
	)
	return r.report
}

func (r *run) normalize(ctx context.Context, ws *staging.Workspace) (media.Asset, error) {
	fetchStart := r.o.now()
	source, err := r.o.fetcher.Fetch(ctx, r.job.Input, ws)
	if err != nil {
		return media.Asset{}, err
	}
	r.report.Meta.Phases["download"] = seconds(r.o.now().Sub(fetchStart))
	return r.o.normalizer.Normalize(ctx, source, ws.Path(normalizedAudioName))
}

func (r *run) transcribe(ctx context.Context, asset media.Asset) (engine.Transcript, error) {
	h, err := r.o.pool.Acquire(ctx, engine.KindTranscription, r.o.engineConfig(r.report.Meta.Model, ""))
	if err != nil {
		return engine.Transcript{}, err
	}
	r.report.Meta.Precision = h.Precision()
	transcript, err := h.Transcribe(ctx, engine.TranscribeRequest{AudioPath: asset.Path, Language: r.lang})
	if err != nil {
		return engine.Transcript{}, err
	}
	detected, err := language.Normalize(transcript.Language)
	if err != nil || language.IsAuto(detected) {
		detected = r.lang
	}
	r.report.Meta.DetectedLanguage = detected
	r.logger.Info("transcription complete",
		logging.Int("segments", len(transcript.Segments)),
		logging.String("detected_language", detected),
		logging.String("precision", h.Precision()),
	)
	return transcript, nil
}

// align returns word timing or an unavailable variant. It only returns an
// error when alignment is required.
func (r *run) align(ctx context.Context, asset media.Asset, transcript engine.Transcript) (timeline.Words, error) {
	cfg := r.o.cfg.Engines
	if !cfg.AlignmentEnabled {
		return timeline.WordsUnavailable("alignment disabled"), nil
	}
	if len(transcript.Segments) == 0 {
		return timeline.WordsUnavailable("no speech detected"), nil
	}
	lang := r.report.Meta.DetectedLanguage
	var err error
	if language.IsAuto(lang) {
		err = services.Wrap(services.ErrAlignment, "aligning", "select model", "Transcript language unknown", nil)
	} else {
		var h *engine.Handle
		h, err = r.o.pool.Acquire(ctx, engine.KindAlignment, r.o.engineConfig(cfg.AlignmentModel, lang))
		if err == nil {
			var words []timeline.Word
			words, err = h.Align(ctx, engine.AlignRequest{AudioPath: asset.Path, Language: lang, Segments: transcript.Segments})
			if err == nil {
				r.report.Meta.Aligned = true
				return timeline.WordsAvailable(words), nil
			}
		}
	}
	if cfg.AlignmentRequired {
		return timeline.Words{}, err
	}
	reason := degradeReason(err)
	logging.WarnWithContext(r.logger, "alignment unavailable; using segment timing", "alignment_degraded",
		logging.Error(err),
		logging.String(logging.FieldImpact, "subtitles keep transcription segment timing"),
	)
	r.issues = append(r.issues, "alignment unavailable: "+reason)
	return timeline.WordsUnavailable(reason), nil
}

// diarize never fails the job.
func (r *run) diarize(ctx context.Context, asset media.Asset, transcript engine.Transcript) timeline.Speakers {
	cfg := r.o.cfg.Engines
	if !cfg.DiarizationEnabled {
		return timeline.SpeakersUnavailable("diarization disabled")
	}
	if len(transcript.Segments) == 0 {
		return timeline.SpeakersUnavailable("no speech detected")
	}
	h, err := r.o.pool.Acquire(ctx, engine.KindDiarization, r.o.engineConfig(cfg.DiarizationModel, ""))
	if err == nil {
		lo, hi := engine.SpeakerRange(r.job.Options.SpeakerCount)
		var spans []timeline.SpeakerSpan
		spans, err = h.Diarize(ctx, engine.DiarizeRequest{AudioPath: asset.Path, MinSpeakers: lo, MaxSpeakers: hi})
		if err == nil {
			r.report.Meta.Diarized = true
			return timeline.SpeakersAvailable(spans)
		}
	}
	reason := degradeReason(err)
	logging.WarnWithContext(r.logger, "diarization unavailable; using default speaker", "diarization_degraded",
		logging.Error(err),
		logging.String(logging.FieldImpact, "every subtitle is labelled "+timeline.DefaultSpeaker),
	)
	r.issues = append(r.issues, "diarization unavailable: "+reason)
	return timeline.SpeakersUnavailable(reason)
}

func degradeReason(err error) string {
	if err == nil {
		return "unknown"
	}
	details := services.Details(err)
	if details.Cause != nil {
		return strings.TrimSpace(details.Cause.Error())
	}
	if msg := strings.TrimSpace(details.Message); msg != "" {
		return msg
	}
	return err.Error()
}

// fail maps a fatal error into the FAILED report and sends the failure
// notification.
func (r *run) fail(ctx context.Context, err error) Report {
	details := services.Details(err)
	message := services.FailureMessage(err)
	failedIn := strings.ToLower(string(r.stage))
	r.report.Status = delivery.StatusFailed
	r.report.Error = message
	r.report.Kind = details.Kind

	logging.ErrorWithContext(r.logger, "job failed", "job_failed",
		logging.String("failed_stage", failedIn),
		logging.String("error_kind", details.Kind),
		logging.String("error_message", message),
		logging.Error(err),
		logging.Alert("job_failure"),
		logging.String(logging.FieldImpact, "no subtitles produced"),
	)

	r.deliver(ctx, delivery.Notification{Status: delivery.StatusFailed, Error: message})
	r.finish(StageFailed)
	return r.report
}

// deliver sends the terminal notification when the job has a callback. The
// delivery ignores caller cancellation; each attempt has its own timeout.
func (r *run) deliver(ctx context.Context, n delivery.Notification) {
	endpoint := strings.TrimSpace(r.job.CallbackURL)
	if endpoint == "" || r.o.dispatcher == nil || !isHTTPURL(endpoint) {
		return
	}
	r.enter(StageDelivering)
	n.JobID = r.job.ID
	n.Endpoint = endpoint
	n.Input = echoInput(r.job)
	outcome := r.o.dispatcher.Deliver(context.WithoutCancel(r.stageContext(ctx)), n)
	r.report.Delivery = &outcome
}

func (r *run) finish(stage Stage) {
	r.enter(stage)
	r.report.Meta.TotalSec = seconds(r.o.now().Sub(r.start))
}

func isHTTPURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
