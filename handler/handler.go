package handler

import (
	"context"
	"encoding/json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"meetmate-worker/constant"
	"meetmate-worker/dto"
	"meetmate-worker/service"
)

type ServiceDependencies struct {
	Gateway service.Gateway
}

// IngestHandler registers a recording announced on the ingest queue.
func IngestHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var in dto.IngestMessage
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal ingest message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("platform", in.Platform).
		Str("meeting_id", in.MeetingID).
		Msg("received ingest message")

	_, _, err := deps.Gateway.Ingest(ctx, constant.Platform(in.Platform), in.MeetingID, in.RecordingURL)
	return err
}
