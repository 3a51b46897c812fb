package service

import (
	"context"
	"meetmate-worker/entities"
	"net/http"
	"time"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Transcript is the output of one transcription call.
type Transcript struct {
	Text     string
	Language string
	Segments []Segment
	Duration time.Duration
}

type Transcriber interface {
	Transcribe(ctx context.Context, sourceURL string) (Transcript, error)
}

// TranscriptStore persists transcripts keyed by meeting id and returns an
// opaque location that Load, and the notifiers, can resolve later.
type TranscriptStore interface {
	Save(ctx context.Context, meetingID string, t Transcript) (string, error)
	Load(ctx context.Context, location string) (Transcript, error)
	LoadText(ctx context.Context, location string) (string, error)
}

// Summary is the output of one summarization call. Empty marks the sentinel
// returned for transcripts without text; no model was called and Usage is
// zero.
type Summary struct {
	Text  string
	Usage entities.TokenUsage
	Model string
	Empty bool
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (Summary, error)
}
