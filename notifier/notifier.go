// Package notifier delivers finished meeting summaries to downstream
// channels. Every notifier checks its configuration before any I/O and
// reports problems as errs.ErrConfiguration or errs.ErrPublish.
package notifier

import (
	"context"
	"github.com/google/uuid"
	"net/http"
)

// Publication is what a notifier receives for one summarized recording.
type Publication struct {
	RecordingID   uuid.UUID
	Platform      string
	MeetingID     string
	SummaryText   string
	TranscriptRef string
}

type Notifier interface {
	Name() string
	Publish(ctx context.Context, p Publication) error
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TranscriptLoader resolves a transcript location to its plain text.
type TranscriptLoader interface {
	LoadText(ctx context.Context, location string) (string, error)
}
