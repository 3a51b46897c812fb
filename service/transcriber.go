package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"io"
	"meetmate-worker/config"
	"meetmate-worker/errs"
	"meetmate-worker/pkg/executor"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type WhisperTranscriber struct {
	cfg      config.Transcriber
	executor executor.Executor
	client   HTTPDoer
}

func NewWhisperTranscriber(cfg config.Transcriber, exec executor.Executor, client HTTPDoer) *WhisperTranscriber {
	return &WhisperTranscriber{
		cfg:      cfg,
		executor: exec,
		client:   client,
	}
}

// whisperOutput is the subset of whisper.cpp's -oj document we read.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe downloads the recording into a scratch directory, extracts a
// 16 kHz mono track and runs whisper over it. The directory is removed on
// return whatever the outcome.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, sourceURL string) (Transcript, error) {
	tempDir, err := os.MkdirTemp(w.cfg.TempDir, "meetmate-")
	if err != nil {
		return Transcript{}, errors.Join(errs.ErrTranscription, err)
	}
	defer os.RemoveAll(tempDir)

	videoPath := filepath.Join(tempDir, "meeting.mp4")
	audioPath := filepath.Join(tempDir, "audio.wav")
	outputPrefix := filepath.Join(tempDir, "transcript")

	zerolog.Ctx(ctx).Info().Str("source", sourceURL).Msg("downloading recording")
	if err := w.download(ctx, sourceURL, videoPath); err != nil {
		return Transcript{}, errors.Join(errs.ErrTranscription, fmt.Errorf("download: %w", err))
	}

	ffmpegArgs := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		audioPath,
	}
	if _, err := w.executor.Execute(ctx, w.cfg.FFmpegBinary, ffmpegArgs...); err != nil {
		return Transcript{}, errors.Join(errs.ErrTranscription, fmt.Errorf("ffmpeg extract audio: %w", err))
	}

	whisperArgs := []string{
		"-m", w.cfg.Model,
		"-f", audioPath,
		"-oj",
		"-of", outputPrefix,
	}
	if w.cfg.Language != "" {
		whisperArgs = append(whisperArgs, "-l", w.cfg.Language)
	}
	if w.cfg.Threads > 0 {
		whisperArgs = append(whisperArgs, "-t", strconv.Itoa(w.cfg.Threads))
	}
	zerolog.Ctx(ctx).Info().Str("model", w.cfg.Model).Msg("running whisper")
	if _, err := w.executor.Execute(ctx, w.cfg.WhisperBinary, whisperArgs...); err != nil {
		return Transcript{}, errors.Join(errs.ErrTranscription, fmt.Errorf("whisper: %w", err))
	}

	raw, err := os.ReadFile(outputPrefix + ".json")
	if err != nil {
		return Transcript{}, errors.Join(errs.ErrTranscription, fmt.Errorf("read whisper output: %w", err))
	}

	t, err := parseWhisperOutput(raw)
	if err != nil {
		return Transcript{}, errors.Join(errs.ErrTranscription, err)
	}
	return t, nil
}

func (w *WhisperTranscriber) download(ctx context.Context, sourceURL, dest string) error {
	if w.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.DownloadTimeout)
		defer cancel()
	}

	operation := func() (int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		resp, err := w.client.Do(req)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("download failed, retrying")
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return 0, fmt.Errorf("server returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return 0, backoff.Permanent(fmt.Errorf("server returned %d", resp.StatusCode))
		}

		f, err := os.Create(dest)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		defer f.Close()

		return io.Copy(f, resp.Body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	n, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("recording is empty")
	}
	return nil
}

func parseWhisperOutput(raw []byte) (Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Transcript{}, fmt.Errorf("parse whisper output: %w", err)
	}

	t := Transcript{
		Language: out.Result.Language,
		Segments: make([]Segment, 0, len(out.Transcription)),
	}
	texts := make([]string, 0, len(out.Transcription))
	var end int64
	for _, s := range out.Transcription {
		text := strings.TrimSpace(s.Text)
		t.Segments = append(t.Segments, Segment{
			Start: float64(s.Offsets.From) / 1000,
			End:   float64(s.Offsets.To) / 1000,
			Text:  text,
		})
		if text != "" {
			texts = append(texts, text)
		}
		if s.Offsets.To > end {
			end = s.Offsets.To
		}
	}
	t.Text = strings.Join(texts, " ")
	t.Duration = time.Duration(end) * time.Millisecond
	return t, nil
}
