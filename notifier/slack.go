package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"meetmate-worker/errs"
	"net/http"
)

type Slack struct {
	webhookURL string
	client     HTTPDoer
}

func NewSlack(webhookURL string, client HTTPDoer) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     client,
	}
}

func (s *Slack) Name() string {
	return "slack"
}

func (s *Slack) Publish(ctx context.Context, p Publication) error {
	if s.webhookURL == "" {
		return errors.Join(errs.ErrConfiguration, errors.New("SLACK_WEBHOOK_URL is not set"))
	}

	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*Meeting Summary (%s)*\n%s", p.MeetingID, p.SummaryText),
	})
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Join(errs.ErrPublish, fmt.Errorf("slack returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	return nil
}
