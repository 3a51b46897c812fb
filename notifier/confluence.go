package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"meetmate-worker/config"
	"meetmate-worker/errs"
	"net/http"
	"strconv"
	"strings"
)

type Confluence struct {
	cfg         config.Confluence
	client      HTTPDoer
	transcripts TranscriptLoader
}

func NewConfluence(cfg config.Confluence, client HTTPDoer, transcripts TranscriptLoader) *Confluence {
	return &Confluence{
		cfg:         cfg,
		client:      client,
		transcripts: transcripts,
	}
}

func (c *Confluence) Name() string {
	return "confluence"
}

type confluencePage struct {
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	Space     confluenceSpace      `json:"space"`
	Ancestors []confluenceAncestor `json:"ancestors"`
	Body      confluenceBody       `json:"body"`
}

type confluenceSpace struct {
	Key string `json:"key"`
}

type confluenceAncestor struct {
	ID int64 `json:"id"`
}

type confluenceBody struct {
	Storage confluenceStorage `json:"storage"`
}

type confluenceStorage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

func (c *Confluence) parentID() (int64, error) {
	var missing []string
	if c.cfg.BaseURL == "" {
		missing = append(missing, "CONFLUENCE_BASE_URL")
	}
	if c.cfg.User == "" {
		missing = append(missing, "CONFLUENCE_USER")
	}
	if c.cfg.APIToken == "" {
		missing = append(missing, "CONFLUENCE_API_TOKEN")
	}
	if c.cfg.Space == "" {
		missing = append(missing, "CONFLUENCE_SPACE")
	}
	if c.cfg.ParentID == "" {
		missing = append(missing, "CONFLUENCE_PARENT_ID")
	}
	if len(missing) > 0 {
		return 0, errors.Join(errs.ErrConfiguration, fmt.Errorf("confluence settings missing: %s", strings.Join(missing, ", ")))
	}

	id, err := strconv.ParseInt(c.cfg.ParentID, 10, 64)
	if err != nil {
		return 0, errors.Join(errs.ErrConfiguration, fmt.Errorf("CONFLUENCE_PARENT_ID %q is not numeric", c.cfg.ParentID))
	}
	return id, nil
}

func (c *Confluence) Publish(ctx context.Context, p Publication) error {
	parent, err := c.parentID()
	if err != nil {
		return err
	}

	var transcript string
	if p.TranscriptRef != "" && c.transcripts != nil {
		transcript, err = c.transcripts.LoadText(ctx, p.TranscriptRef)
		if err != nil {
			return errors.Join(errs.ErrPublish, fmt.Errorf("read transcript: %w", err))
		}
	}

	title := "Meeting Summary: " + p.MeetingID
	page := confluencePage{
		Type:      "page",
		Title:     title,
		Space:     confluenceSpace{Key: c.cfg.Space},
		Ancestors: []confluenceAncestor{{ID: parent}},
		Body: confluenceBody{Storage: confluenceStorage{
			Value:          pageBody(title, p.SummaryText, transcript),
			Representation: "storage",
		}},
	}
	body, err := json.Marshal(page)
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/rest/api/content/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.User, c.cfg.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Join(errs.ErrPublish, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Join(errs.ErrPublish, fmt.Errorf("confluence returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	return nil
}

// pageBody renders the page in Confluence storage format.
func pageBody(title, summary, transcript string) string {
	return "<h1>" + html.EscapeString(title) + "</h1>" +
		"<h2>Summary</h2><p>" + storageText(summary) + "</p>" +
		"<h2>Transcript</h2><p>" + storageText(transcript) + "</p>"
}

func storageText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br/>")
}
