package dto

import (
	"github.com/google/uuid"
	"time"
)

// ZoomEvent is the subset of a Zoom webhook body the ingestion endpoint reads.
type ZoomEvent struct {
	Event   string      `json:"event"`
	Meta    ZoomMeta    `json:"meta"`
	Payload ZoomPayload `json:"payload"`
	EventTs int64       `json:"event_ts,omitempty"`
}

type ZoomMeta struct {
	Token string `json:"token"`
}

type ZoomPayload struct {
	PlainToken string     `json:"plainToken,omitempty"`
	Object     ZoomObject `json:"object"`
}

type ZoomObject struct {
	UUID           string              `json:"uuid"`
	ID             any                 `json:"id,omitempty"`
	Topic          string              `json:"topic,omitempty"`
	DownloadURL    string              `json:"download_url"`
	RecordingFiles []ZoomRecordingFile `json:"recording_files,omitempty"`
}

type ZoomRecordingFile struct {
	ID          string `json:"id"`
	FileType    string `json:"file_type"`
	DownloadURL string `json:"download_url"`
	Status      string `json:"status,omitempty"`
}

type ZoomURLValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// IngestMessage is consumed from the recording ingest queue.
type IngestMessage struct {
	Platform     string `json:"platform"`
	MeetingID    string `json:"meetingId"`
	RecordingURL string `json:"recordingUrl"`
}

// SummaryEvent is published when a recording summary is ready.
type SummaryEvent struct {
	EventID       uuid.UUID `json:"eventId"`
	RecordingID   uuid.UUID `json:"recordingId"`
	Platform      string    `json:"platform"`
	MeetingID     string    `json:"meetingId"`
	Summary       string    `json:"summary"`
	TranscriptRef string    `json:"transcriptRef"`
	PublishedAt   time.Time `json:"publishedAt"`
}

// TranscriptArtifact is the persisted transcript document, one per meeting.
type TranscriptArtifact struct {
	MeetingID       string              `json:"meeting_id"`
	Text            string              `json:"text"`
	Language        string              `json:"language,omitempty"`
	Segments        []TranscriptSegment `json:"segments,omitempty"`
	DurationSeconds float64             `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
