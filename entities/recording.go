package entities

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"meetmate-worker/constant"
	"time"
)

type Recording struct {
	ID                 uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	Platform           constant.Platform `json:"platform" gorm:"type:varchar(32);not null;uniqueIndex:idx_recordings_platform_meeting,priority:1"`
	MeetingID          string            `json:"meeting_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_recordings_platform_meeting,priority:2"`
	RecordingURL       string            `json:"recording_url" gorm:"type:text;not null"`
	ReceivedAt         time.Time         `json:"received_at" gorm:"not null;index:idx_recordings_received_at"`
	Stage              constant.Stage    `json:"stage" gorm:"type:varchar(20);not null;index:idx_recordings_stage"`
	TranscriptLocation *string           `json:"transcript_location" gorm:"type:text"`
	SummaryText        *string           `json:"summary_text" gorm:"type:text"`
	FailureCount       int               `json:"failure_count" gorm:"not null;default:0"`
	LastError          *string           `json:"last_error" gorm:"type:text"`
	LastAttemptAt      *time.Time        `json:"last_attempt_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (Recording) TableName() string {
	return "recordings"
}

func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Stage == "" {
		r.Stage = constant.StageNew
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	return nil
}

// HasSummary reports whether a summary has been persisted.
func (r *Recording) HasSummary() bool {
	return r.SummaryText != nil && *r.SummaryText != ""
}
