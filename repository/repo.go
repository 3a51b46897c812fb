package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"meetmate-worker/constant"
	"meetmate-worker/entities"
	"meetmate-worker/errs"
	"strings"
	"time"
	"unicode/utf8"
)

const maxErrorLength = 2000

// AdvanceFields carries the stage-specific columns written with a transition.
type AdvanceFields struct {
	TranscriptLocation *string
	SummaryText        *string
}

type RecordingRepository interface {
	UpsertIfAbsent(ctx context.Context, platform constant.Platform, meetingID, recordingURL string) (*entities.Recording, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Recording, error)
	FindByIdentity(ctx context.Context, platform constant.Platform, meetingID string) (*entities.Recording, error)
	ListByStage(ctx context.Context, stage constant.Stage) ([]*entities.Recording, error)
	Advance(ctx context.Context, id uuid.UUID, to constant.Stage, fields AdvanceFields) error
	RecordFailure(ctx context.Context, id uuid.UUID, cause error)
	Rewind(ctx context.Context, id uuid.UUID, to constant.Stage) error
}

type MetricsRepository interface {
	RecordMetrics(ctx context.Context, recordingID uuid.UUID, usage entities.TokenUsage, costPerToken float64, model string) (*entities.SummaryMetrics, error)
	ListMetrics(ctx context.Context, since time.Time) ([]*entities.SummaryMetrics, error)
	ListMetricsByRecording(ctx context.Context, recordingID uuid.UUID) ([]*entities.SummaryMetrics, error)
}

type Repository interface {
	RecordingRepository
	MetricsRepository
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	AutoMigrate(ctx context.Context) error
	GetDB() *gorm.DB
}

type txKey struct{}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repo{
		db: db,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

// conn returns the transaction carried by ctx, or the base handle.
func (r *repo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

func (r *repo) AutoMigrate(ctx context.Context) error {
	return r.conn(ctx).AutoMigrate(&entities.Recording{}, &entities.SummaryMetrics{})
}

// UpsertIfAbsent relies on the (platform, meeting_id) unique index: a
// concurrent insert of the same identity loses the conflict and reads the
// winner's row.
func (r *repo) UpsertIfAbsent(ctx context.Context, platform constant.Platform, meetingID, recordingURL string) (*entities.Recording, bool, error) {
	rec := &entities.Recording{
		Platform:     platform,
		MeetingID:    meetingID,
		RecordingURL: recordingURL,
		Stage:        constant.StageNew,
		ReceivedAt:   time.Now().UTC(),
	}

	res := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "meeting_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return rec, true, nil
	}

	existing, err := r.FindByIdentity(ctx, platform, meetingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repo) FindByID(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	rec := &entities.Recording{}
	err := r.conn(ctx).First(rec, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "recording %s", id)
	}
	return rec, nil
}

func (r *repo) FindByIdentity(ctx context.Context, platform constant.Platform, meetingID string) (*entities.Recording, error) {
	rec := &entities.Recording{}
	err := r.conn(ctx).First(rec, "platform = ? AND meeting_id = ?", platform, meetingID).Error
	if err != nil {
		return nil, notFound(err, "recording %s/%s", platform, meetingID)
	}
	return rec, nil
}

func (r *repo) ListByStage(ctx context.Context, stage constant.Stage) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	err := r.conn(ctx).
		Where("stage = ?", stage).
		Order("received_at ASC").
		Order("meeting_id ASC").
		Find(&recordings).Error
	if err != nil {
		return nil, err
	}
	return recordings, nil
}

// Advance moves a recording one stage forward. The update is conditional on
// the current stage so two writers can never both apply the same step.
func (r *repo) Advance(ctx context.Context, id uuid.UUID, to constant.Stage, fields AdvanceFields) error {
	from, ok := to.Previous()
	if !ok {
		return fmt.Errorf("%w: nothing advances into %s", errs.ErrInvalidTransition, to)
	}
	if err := constant.ValidateTransition(from, to); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"stage":      to,
		"updated_at": time.Now().UTC(),
	}
	switch to {
	case constant.StageTranscribed:
		if fields.TranscriptLocation == nil || *fields.TranscriptLocation == "" {
			return fmt.Errorf("%w: %s requires a transcript location", errs.ErrInvalidTransition, to)
		}
		updates["transcript_location"] = *fields.TranscriptLocation
	case constant.StageSummarized:
		if fields.SummaryText == nil {
			return fmt.Errorf("%w: %s requires summary text", errs.ErrInvalidTransition, to)
		}
		updates["summary_text"] = *fields.SummaryText
	}
	if to != constant.StageTranscribed && fields.TranscriptLocation != nil {
		return fmt.Errorf("%w: transcript location is only written on %s", errs.ErrInvalidTransition, constant.StageTranscribed)
	}
	if to != constant.StageSummarized && fields.SummaryText != nil {
		return fmt.Errorf("%w: summary text is only written on %s", errs.ErrInvalidTransition, constant.StageSummarized)
	}

	res := r.conn(ctx).Model(&entities.Recording{}).
		Where("id = ? AND stage = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: recording %s is %s, cannot move to %s", errs.ErrInvalidTransition, id, current.Stage, to)
}

// RecordFailure notes a failed attempt without touching the stage, so the
// next pass retries. Store errors are logged and swallowed.
func (r *repo) RecordFailure(ctx context.Context, id uuid.UUID, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = truncateError(msg)

	now := time.Now().UTC()
	res := r.conn(ctx).Model(&entities.Recording{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"failure_count":   gorm.Expr("failure_count + ?", 1),
			"last_error":      msg,
			"last_attempt_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		zerolog.Ctx(ctx).Error().Err(res.Error).Str("recording_id", id.String()).Msg("failed to record failure")
		return
	}
	if res.RowsAffected == 0 {
		zerolog.Ctx(ctx).Warn().Str("recording_id", id.String()).Msg("failure recorded for missing recording")
	}
}

// Rewind is the explicit retry: it moves a recording back to an earlier stage
// and clears whatever the later stages wrote.
func (r *repo) Rewind(ctx context.Context, id uuid.UUID, to constant.Stage) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown stage %q", errs.ErrInvalidTransition, to)
	}

	return r.Transaction(ctx, func(ctx context.Context) error {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !to.Before(current.Stage) {
			return fmt.Errorf("%w: cannot rewind %s to %s", errs.ErrInvalidTransition, current.Stage, to)
		}

		updates := map[string]interface{}{
			"stage":         to,
			"failure_count": 0,
			"last_error":    nil,
			"updated_at":    time.Now().UTC(),
		}
		if to == constant.StageNew {
			updates["transcript_location"] = nil
		}
		if to.Before(constant.StageSummarized) {
			updates["summary_text"] = nil
		}

		return r.conn(ctx).Model(&entities.Recording{}).
			Where("id = ? AND stage = ?", id, current.Stage).
			Updates(updates).Error
	})
}

func (r *repo) RecordMetrics(ctx context.Context, recordingID uuid.UUID, usage entities.TokenUsage, costPerToken float64, model string) (*entities.SummaryMetrics, error) {
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
		return nil, fmt.Errorf("token counts must not be negative: %+v", usage)
	}
	if costPerToken < 0 {
		return nil, fmt.Errorf("cost per token must not be negative: %v", costPerToken)
	}

	m := &entities.SummaryMetrics{
		RecordingID:      recordingID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CostPerToken:     costPerToken,
		Cost:             float64(usage.TotalTokens) * costPerToken,
		Model:            model,
		CreatedAt:        time.Now().UTC(),
	}
	if err := r.conn(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repo) ListMetrics(ctx context.Context, since time.Time) ([]*entities.SummaryMetrics, error) {
	var metrics []*entities.SummaryMetrics
	err := r.conn(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

func (r *repo) ListMetricsByRecording(ctx context.Context, recordingID uuid.UUID) ([]*entities.SummaryMetrics, error) {
	var metrics []*entities.SummaryMetrics
	err := r.conn(ctx).
		Where("recording_id = ?", recordingID).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// truncateError caps msg at maxErrorLength bytes without splitting a rune.
func truncateError(msg string) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", errs.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
