package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"meetmate-worker/constant"
	"meetmate-worker/entities"
	"meetmate-worker/repository"
	"strings"
)

var ErrInvalidIngest = errors.New("invalid ingest request")

type Gateway interface {
	Ingest(ctx context.Context, platform constant.Platform, meetingID, recordingURL string) (*entities.Recording, bool, error)
}

type gateway struct {
	repo repository.RecordingRepository
}

func NewGateway(repo repository.RecordingRepository) Gateway {
	return &gateway{
		repo: repo,
	}
}

// Ingest registers a recording exactly once per (platform, meeting id).
// Repeated deliveries return the existing row with created=false.
func (g *gateway) Ingest(ctx context.Context, platform constant.Platform, meetingID, recordingURL string) (*entities.Recording, bool, error) {
	meetingID = strings.TrimSpace(meetingID)
	recordingURL = strings.TrimSpace(recordingURL)

	if !platform.Valid() {
		return nil, false, fmt.Errorf("%w: unknown platform %q", ErrInvalidIngest, platform)
	}
	if meetingID == "" {
		return nil, false, fmt.Errorf("%w: meeting id is required", ErrInvalidIngest)
	}
	if recordingURL == "" {
		return nil, false, fmt.Errorf("%w: recording url is required", ErrInvalidIngest)
	}

	rec, created, err := g.repo.UpsertIfAbsent(ctx, platform, meetingID, recordingURL)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("platform", platform.String()).Str("meeting_id", meetingID).Msg("failed to ingest recording")
		return nil, false, err
	}

	zerolog.Ctx(ctx).Info().
		Str("recording_id", rec.ID.String()).
		Str("platform", platform.String()).
		Str("meeting_id", meetingID).
		Str("stage", rec.Stage.String()).
		Bool("created", created).
		Msg("recording ingested")

	return rec, created, nil
}
