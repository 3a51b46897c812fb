package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/google/uuid"
	"meetmate-worker/dto"
	"meetmate-worker/errs"
	"time"
)

const SummaryRoutingKey = "meeting.summary"

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Queue struct {
	publisher Publisher
}

func NewQueue(publisher Publisher) *Queue {
	return &Queue{
		publisher: publisher,
	}
}

func (q *Queue) Name() string {
	return "queue"
}

func (q *Queue) Publish(ctx context.Context, p Publication) error {
	if q.publisher == nil {
		return errors.Join(errs.ErrConfiguration, errors.New("no message publisher configured"))
	}

	body, err := json.Marshal(dto.SummaryEvent{
		EventID:       uuid.New(),
		RecordingID:   p.RecordingID,
		Platform:      p.Platform,
		MeetingID:     p.MeetingID,
		Summary:       p.SummaryText,
		TranscriptRef: p.TranscriptRef,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}

	if err := q.publisher.Publish(ctx, SummaryRoutingKey, body); err != nil {
		return errors.Join(errs.ErrPublish, err)
	}
	return nil
}
