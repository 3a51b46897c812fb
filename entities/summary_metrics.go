package entities

import (
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

var ErrMetricsImmutable = errors.New("summary metrics are immutable")

// SummaryMetrics is the usage ledger entry written once per successful
// summarization call.
type SummaryMetrics struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RecordingID      uuid.UUID `json:"recording_id" gorm:"type:uuid;not null;index:idx_summary_metrics_recording"`
	PromptTokens     int       `json:"prompt_tokens" gorm:"not null"`
	CompletionTokens int       `json:"completion_tokens" gorm:"not null"`
	TotalTokens      int       `json:"total_tokens" gorm:"not null"`
	CostPerToken     float64   `json:"cost_per_token" gorm:"not null"`
	Cost             float64   `json:"cost" gorm:"not null"`
	Model            string    `json:"model" gorm:"type:varchar(128)"`
	CreatedAt        time.Time `json:"created_at" gorm:"index:idx_summary_metrics_created_at"`
}

func (SummaryMetrics) TableName() string {
	return "summary_metrics"
}

func (m *SummaryMetrics) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *SummaryMetrics) BeforeUpdate(tx *gorm.DB) error {
	return ErrMetricsImmutable
}

// TokenUsage is the token accounting reported by a summarization model.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
