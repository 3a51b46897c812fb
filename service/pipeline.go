package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"meetmate-worker/constant"
	"meetmate-worker/entities"
	"meetmate-worker/errs"
	"meetmate-worker/notifier"
	"meetmate-worker/repository"
	"sync"
	"sync/atomic"
	"time"
)

type Outcome string

const (
	OutcomeAdvanced Outcome = "advanced"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// StageResult describes one attempted stage step for one recording. On
// failure From and To are equal and Err holds the cause.
type StageResult struct {
	RecordingID   uuid.UUID
	Platform      constant.Platform
	MeetingID     string
	From          constant.Stage
	To            constant.Stage
	Outcome       Outcome
	Err           error
	Notifications []NotifyResult
}

type NotifyResult struct {
	Notifier string
	Err      error
}

func (n NotifyResult) OK() bool {
	return n.Err == nil
}

type PassReport struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Transcribed int
	Summarized  int
	Published   int
	Failed      int
	Skipped     int
	Results     []StageResult
}

func (r *PassReport) add(results ...StageResult) {
	for _, res := range results {
		switch res.Outcome {
		case OutcomeFailed:
			r.Failed++
		case OutcomeSkipped:
			r.Skipped++
		case OutcomeAdvanced:
			switch res.To {
			case constant.StageTranscribed:
				r.Transcribed++
			case constant.StageSummarized:
				r.Summarized++
			case constant.StagePublished:
				r.Published++
			}
		}
		r.Results = append(r.Results, res)
	}
}

func (r PassReport) Failures() []StageResult {
	var out []StageResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

type RunnerConfig struct {
	CostPerToken      float64
	Workers           int
	TranscribeTimeout time.Duration
	SummarizeTimeout  time.Duration
	PublishTimeout    time.Duration
}

type Runner struct {
	repo        repository.Repository
	transcriber Transcriber
	store       TranscriptStore
	summarizer  Summarizer
	notifiers   []notifier.Notifier
	cfg         RunnerConfig
	running     atomic.Bool
}

func NewRunner(
	repo repository.Repository,
	transcriber Transcriber,
	store TranscriptStore,
	summarizer Summarizer,
	notifiers []notifier.Notifier,
	cfg RunnerConfig,
) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		repo:        repo,
		transcriber: transcriber,
		store:       store,
		summarizer:  summarizer,
		notifiers:   notifiers,
		cfg:         cfg,
	}
}

// RunOnce executes one full pass: transcription of NEW recordings (each
// summarized and published right after), a summarization catch-up over
// TRANSCRIBED recordings and a publish catch-up over SUMMARIZED ones.
// Recordings attempted earlier in the pass are not retried by a later
// catch-up. Per-recording failures are recorded and reported, never
// returned.
func (r *Runner) RunOnce(ctx context.Context) (PassReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return PassReport{}, errs.ErrPassInProgress
	}
	defer r.running.Store(false)

	report := PassReport{StartedAt: time.Now().UTC()}

	attempted := make(map[uuid.UUID]bool)

	fresh, err := r.repo.ListByStage(ctx, constant.StageNew)
	if err != nil {
		return r.finish(report), fmt.Errorf("list %s recordings: %w", constant.StageNew, err)
	}
	for _, rec := range fresh {
		attempted[rec.ID] = true
	}
	report.add(r.each(ctx, fresh, r.processNew)...)

	transcribed, err := r.repo.ListByStage(ctx, constant.StageTranscribed)
	if err != nil {
		return r.finish(report), fmt.Errorf("list %s recordings: %w", constant.StageTranscribed, err)
	}
	var pending []*entities.Recording
	for _, rec := range transcribed {
		if attempted[rec.ID] || rec.HasSummary() {
			continue
		}
		attempted[rec.ID] = true
		pending = append(pending, rec)
	}
	report.add(r.each(ctx, pending, r.processTranscribed)...)

	summarized, err := r.repo.ListByStage(ctx, constant.StageSummarized)
	if err != nil {
		return r.finish(report), fmt.Errorf("list %s recordings: %w", constant.StageSummarized, err)
	}
	pending = nil
	for _, rec := range summarized {
		if attempted[rec.ID] {
			continue
		}
		pending = append(pending, rec)
	}
	report.add(r.each(ctx, pending, r.processSummarized)...)

	report = r.finish(report)
	zerolog.Ctx(ctx).Info().
		Int("transcribed", report.Transcribed).
		Int("summarized", report.Summarized).
		Int("published", report.Published).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("pipeline pass finished")

	return report, ctx.Err()
}

func (r *Runner) finish(report PassReport) PassReport {
	report.FinishedAt = time.Now().UTC()
	return report
}

// each hands recordings to a fixed pool of workers. A recording is owned by
// exactly one worker for the whole step chain.
func (r *Runner) each(ctx context.Context, recs []*entities.Recording, fn func(ctx context.Context, rec *entities.Recording) []StageResult) []StageResult {
	if len(recs) == 0 {
		return nil
	}

	jobs := make(chan *entities.Recording)
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []StageResult
	)
	for i := 1; i <= r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				res := fn(recordingContext(ctx, rec), rec)
				mu.Lock()
				results = append(results, res...)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, rec := range recs {
		select {
		case jobs <- rec:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func recordingContext(ctx context.Context, rec *entities.Recording) context.Context {
	logger := zerolog.Ctx(ctx).With().
		Str("recording_id", rec.ID.String()).
		Str("platform", rec.Platform.String()).
		Str("meeting_id", rec.MeetingID).
		Logger()
	return logger.WithContext(ctx)
}

func (r *Runner) processNew(ctx context.Context, rec *entities.Recording) []StageResult {
	zerolog.Ctx(ctx).Info().Str("stage", rec.Stage.String()).Msg("transcribing recording")

	tctx, cancel := withTimeout(ctx, r.cfg.TranscribeTimeout)
	transcript, err := r.transcriber.Transcribe(tctx, rec.RecordingURL)
	cancel()
	if err != nil {
		return []StageResult{r.fail(ctx, rec, err)}
	}

	location, err := r.store.Save(ctx, rec.MeetingID, transcript)
	if err != nil {
		return []StageResult{r.fail(ctx, rec, errors.Join(errs.ErrTranscription, fmt.Errorf("save transcript: %w", err)))}
	}

	result, ok := r.advance(ctx, rec, constant.StageTranscribed, repository.AdvanceFields{TranscriptLocation: &location})
	if !ok {
		return []StageResult{result}
	}
	rec.TranscriptLocation = &location

	return append([]StageResult{result}, r.summarize(ctx, rec, transcript.Text)...)
}

func (r *Runner) processTranscribed(ctx context.Context, rec *entities.Recording) []StageResult {
	if rec.TranscriptLocation == nil {
		return []StageResult{r.fail(ctx, rec, errors.Join(errs.ErrSummarization, errors.New("recording has no transcript location")))}
	}

	transcript, err := r.store.Load(ctx, *rec.TranscriptLocation)
	if err != nil {
		return []StageResult{r.fail(ctx, rec, errors.Join(errs.ErrSummarization, fmt.Errorf("load transcript: %w", err)))}
	}
	return r.summarize(ctx, rec, transcript.Text)
}

func (r *Runner) processSummarized(ctx context.Context, rec *entities.Recording) []StageResult {
	return []StageResult{r.publish(ctx, rec)}
}

// summarize persists the summary and its billing row together, then
// publishes.
func (r *Runner) summarize(ctx context.Context, rec *entities.Recording, text string) []StageResult {
	zerolog.Ctx(ctx).Info().Str("stage", rec.Stage.String()).Msg("summarizing recording")

	sctx, cancel := withTimeout(ctx, r.cfg.SummarizeTimeout)
	summary, err := r.summarizer.Summarize(sctx, text)
	cancel()
	if err != nil {
		return []StageResult{r.fail(ctx, rec, err)}
	}

	var stale bool
	err = r.repo.Transaction(ctx, func(ctx context.Context) error {
		err := r.repo.Advance(ctx, rec.ID, constant.StageSummarized, repository.AdvanceFields{SummaryText: &summary.Text})
		if err != nil {
			stale = errors.Is(err, errs.ErrInvalidTransition)
			return err
		}
		if summary.Empty {
			return nil
		}
		if !validUsage(summary.Usage) {
			zerolog.Ctx(ctx).Warn().Interface("usage", summary.Usage).Msg("summarizer reported invalid token usage, not billed")
			return nil
		}
		_, err = r.repo.RecordMetrics(ctx, rec.ID, summary.Usage, r.cfg.CostPerToken, summary.Model)
		return err
	})
	if stale {
		return []StageResult{r.skip(ctx, rec, constant.StageSummarized, err)}
	}
	if err != nil {
		return []StageResult{r.fail(ctx, rec, errors.Join(errs.ErrSummarization, err))}
	}

	result := r.advanced(ctx, rec, constant.StageSummarized)
	rec.Stage = constant.StageSummarized
	rec.SummaryText = &summary.Text

	return []StageResult{result, r.publish(ctx, rec)}
}

// publish attempts every notifier independently, then marks the recording
// PUBLISHED whatever the notifiers reported. A recording that is already
// PUBLISHED is never delivered twice.
func (r *Runner) publish(ctx context.Context, rec *entities.Recording) StageResult {
	if rec.Stage.Terminal() {
		return r.skip(ctx, rec, rec.Stage, fmt.Errorf("%w: recording is already %s", errs.ErrInvalidTransition, rec.Stage))
	}

	pub := notifier.Publication{
		RecordingID: rec.ID,
		Platform:    rec.Platform.String(),
		MeetingID:   rec.MeetingID,
	}
	if rec.SummaryText != nil {
		pub.SummaryText = *rec.SummaryText
	}
	if rec.TranscriptLocation != nil {
		pub.TranscriptRef = *rec.TranscriptLocation
	}

	notifications := make([]NotifyResult, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		nctx, cancel := withTimeout(ctx, r.cfg.PublishTimeout)
		err := n.Publish(nctx, pub)
		cancel()

		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("notifier", n.Name()).Str("error_kind", errs.Kind(err)).Msg("notifier failed")
		} else {
			zerolog.Ctx(ctx).Info().Str("notifier", n.Name()).Msg("summary delivered")
		}
		notifications = append(notifications, NotifyResult{Notifier: n.Name(), Err: err})
	}

	result, _ := r.advance(ctx, rec, constant.StagePublished, repository.AdvanceFields{})
	result.Notifications = notifications
	if result.Outcome == OutcomeAdvanced {
		rec.Stage = constant.StagePublished
	}
	return result
}

// advance moves rec one stage forward. A stale stage means another runner
// got there first and is reported as skipped.
func (r *Runner) advance(ctx context.Context, rec *entities.Recording, to constant.Stage, fields repository.AdvanceFields) (StageResult, bool) {
	if err := r.repo.Advance(ctx, rec.ID, to, fields); err != nil {
		if errors.Is(err, errs.ErrInvalidTransition) {
			return r.skip(ctx, rec, to, err), false
		}
		return r.fail(ctx, rec, err), false
	}
	result := r.advanced(ctx, rec, to)
	rec.Stage = to
	return result, true
}

func (r *Runner) advanced(ctx context.Context, rec *entities.Recording, to constant.Stage) StageResult {
	zerolog.Ctx(ctx).Info().Str("stage", to.String()).Str("from", rec.Stage.String()).Msg("recording advanced")
	return StageResult{
		RecordingID: rec.ID,
		Platform:    rec.Platform,
		MeetingID:   rec.MeetingID,
		From:        rec.Stage,
		To:          to,
		Outcome:     OutcomeAdvanced,
	}
}

func (r *Runner) skip(ctx context.Context, rec *entities.Recording, to constant.Stage, err error) StageResult {
	zerolog.Ctx(ctx).Info().Err(err).Str("stage", rec.Stage.String()).Str("target", to.String()).Msg("recording moved elsewhere, skipping")
	return StageResult{
		RecordingID: rec.ID,
		Platform:    rec.Platform,
		MeetingID:   rec.MeetingID,
		From:        rec.Stage,
		To:          rec.Stage,
		Outcome:     OutcomeSkipped,
		Err:         err,
	}
}

// fail records the attempt and leaves the stage untouched so the next pass
// retries it.
func (r *Runner) fail(ctx context.Context, rec *entities.Recording, err error) StageResult {
	zerolog.Ctx(ctx).Error().Err(err).
		Str("stage", rec.Stage.String()).
		Str("error_kind", errs.Kind(err)).
		Msg("pipeline step failed")

	r.repo.RecordFailure(context.WithoutCancel(ctx), rec.ID, err)

	return StageResult{
		RecordingID: rec.ID,
		Platform:    rec.Platform,
		MeetingID:   rec.MeetingID,
		From:        rec.Stage,
		To:          rec.Stage,
		Outcome:     OutcomeFailed,
		Err:         err,
	}
}

func validUsage(u entities.TokenUsage) bool {
	return u.PromptTokens >= 0 && u.CompletionTokens >= 0 && u.TotalTokens >= 0
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
