package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"google.golang.org/genai"
	"io"
	"meetmate-worker/entities"
	"meetmate-worker/errs"
	"net/http"
	"strings"
)

const EmptyTranscriptText = "Transcript was empty or contained no text."

const summaryPrompt = `You are an assistant that writes short, factual meeting notes.

Summarize the meeting transcript below in two sections:

**Key Decisions (5 bullet points):**
Exactly five bullet points, one decision each. If fewer than five decisions were made, fill the remaining bullets with "(No other decisions noted)".

**Action Items:**
One bullet per action item in the form "- <owner>: <task>". Use "Unassigned" when no owner was named.

Transcript:
---
%s
---`

// EmptySummary is returned instead of calling a model when the transcript
// has no text. It carries zero usage and must not be billed.
func EmptySummary() Summary {
	return Summary{
		Text:  EmptyTranscriptText,
		Empty: true,
	}
}

func buildPrompt(transcript string) string {
	return fmt.Sprintf(summaryPrompt, strings.TrimSpace(transcript))
}

type OpenAISummarizer struct {
	apiKey  string
	model   string
	baseURL string
	client  HTTPDoer
}

func NewOpenAISummarizer(apiKey, model, baseURL string, client HTTPDoer) *OpenAISummarizer {
	return &OpenAISummarizer{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string) (Summary, error) {
	if s.apiKey == "" {
		return Summary{}, errors.Join(errs.ErrConfiguration, errors.New("OPENAI_API_KEY is not set"))
	}
	if strings.TrimSpace(transcript) == "" {
		return EmptySummary(), nil
	}

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(transcript)},
		},
		Temperature: 0,
	})
	if err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return Summary{}, errors.Join(errs.ErrConfiguration, fmt.Errorf("openai rejected the api key: %s", bytes.TrimSpace(raw)))
	}
	if resp.StatusCode != http.StatusOK {
		return Summary{}, errors.Join(errs.ErrSummarization, fmt.Errorf("openai returned %d: %s", resp.StatusCode, truncate(raw, 512)))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return Summary{}, errors.Join(errs.ErrSummarization, errors.New("empty response from openai"))
	}

	model := out.Model
	if model == "" {
		model = s.model
	}
	return Summary{
		Text: strings.TrimSpace(out.Choices[0].Message.Content),
		Usage: entities.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Model: model,
	}, nil
}

// contentGenerator is satisfied by *genai.Models.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiSummarizer struct {
	apiKey    string
	model     string
	generator contentGenerator
}

func NewGeminiSummarizer(apiKey, model string) *GeminiSummarizer {
	return &GeminiSummarizer{
		apiKey: apiKey,
		model:  model,
	}
}

func (s *GeminiSummarizer) models(ctx context.Context) (contentGenerator, error) {
	if s.generator != nil {
		return s.generator, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client.Models, nil
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, transcript string) (Summary, error) {
	if s.apiKey == "" {
		return Summary{}, errors.Join(errs.ErrConfiguration, errors.New("GEMINI_API_KEY is not set"))
	}
	if strings.TrimSpace(transcript) == "" {
		return EmptySummary(), nil
	}

	models, err := s.models(ctx)
	if err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, err)
	}

	result, err := models.GenerateContent(ctx, s.model, genai.Text(buildPrompt(transcript)), nil)
	if err != nil {
		return Summary{}, errors.Join(errs.ErrSummarization, fmt.Errorf("generate content: %w", err))
	}

	var text strings.Builder
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Summary{}, errors.Join(errs.ErrSummarization, errors.New("empty response from gemini"))
	}

	summary := Summary{
		Text:  strings.TrimSpace(text.String()),
		Model: s.model,
	}
	if u := result.UsageMetadata; u != nil {
		summary.Usage = entities.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return summary, nil
}

func truncate(b []byte, n int) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > n {
		return s[:n]
	}
	return s
}
