package service

import (
	"context"
	"errors"
	"meetmate-worker/config"
	"meetmate-worker/errs"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

const whisperJSON = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 0, "to": 1800}, "text": " Hello everyone."},
    {"offsets": {"from": 1800, "to": 4200}, "text": " Let's ship it."}
  ]
}`

// scriptedExecutor stands in for ffmpeg and whisper by writing the files
// they would produce.
type scriptedExecutor struct {
	t       *testing.T
	output  string
	failOn  string
	calls   []string
	ffmpeg  []string
	videoOK bool
}

func (e *scriptedExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	e.calls = append(e.calls, name)
	if name == e.failOn {
		return "", errors.New("exit status 1")
	}
	switch name {
	case "ffmpeg":
		e.ffmpeg = args
		in := args[slices.Index(args, "-i")+1]
		if raw, err := os.ReadFile(in); err == nil && string(raw) == "video-bytes" {
			e.videoOK = true
		}
		return "", os.WriteFile(args[len(args)-1], []byte("wav"), 0o644)
	case "whisper-cli":
		prefix := args[slices.Index(args, "-of")+1]
		return "", os.WriteFile(prefix+".json", []byte(e.output), 0o644)
	}
	e.t.Fatalf("unexpected command %q", name)
	return "", nil
}

func transcriberConfig(t *testing.T) config.Transcriber {
	return config.Transcriber{
		WhisperBinary:   "whisper-cli",
		FFmpegBinary:    "ffmpeg",
		Model:           "models/ggml-tiny.en.bin",
		Language:        "en",
		Threads:         2,
		TempDir:         t.TempDir(),
		DownloadTimeout: 10 * time.Second,
	}
}

func videoServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		w.Write([]byte("video-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestWhisperTranscribe(t *testing.T) {
	cfg := transcriberConfig(t)
	srv, _ := videoServer(t)
	exec := &scriptedExecutor{t: t, output: whisperJSON}

	got, err := NewWhisperTranscriber(cfg, exec, http.DefaultClient).Transcribe(context.Background(), srv.URL+"/rec.mp4")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got.Text != "Hello everyone. Let's ship it." {
		t.Errorf("text = %q", got.Text)
	}
	if got.Language != "en" || len(got.Segments) != 2 {
		t.Errorf("transcript = %+v", got)
	}
	if got.Segments[1].Start != 1.8 || got.Segments[1].End != 4.2 {
		t.Errorf("segment = %+v", got.Segments[1])
	}
	if got.Duration != 4200*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}

	if !slices.Equal(exec.calls, []string{"ffmpeg", "whisper-cli"}) {
		t.Errorf("calls = %v", exec.calls)
	}
	if !exec.videoOK {
		t.Error("ffmpeg did not receive the downloaded recording")
	}
	for _, want := range [][]string{{"-ar", "16000"}, {"-ac", "1"}} {
		i := slices.Index(exec.ffmpeg, want[0])
		if i < 0 || exec.ffmpeg[i+1] != want[1] {
			t.Errorf("ffmpeg args %v missing %v", exec.ffmpeg, want)
		}
	}

	entries, _ := os.ReadDir(cfg.TempDir)
	if len(entries) != 0 {
		t.Errorf("scratch directory not removed: %v", entries)
	}
}

func TestWhisperTranscribeRetriesTransientDownload(t *testing.T) {
	srv, hits := videoServer(t, http.StatusServiceUnavailable)
	exec := &scriptedExecutor{t: t, output: whisperJSON}

	if _, err := NewWhisperTranscriber(transcriberConfig(t), exec, http.DefaultClient).Transcribe(context.Background(), srv.URL); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("download attempts = %d, want 2", hits.Load())
	}
}

func TestWhisperTranscribeFailures(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		failOn   string
		output   string
		wantHits int32
	}{
		{"not found is permanent", []int{http.StatusNotFound}, "", whisperJSON, 1},
		{"ffmpeg fails", nil, "ffmpeg", whisperJSON, 1},
		{"whisper fails", nil, "whisper-cli", whisperJSON, 1},
		{"whisper output unreadable", nil, "", "not json", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := transcriberConfig(t)
			srv, hits := videoServer(t, tt.statuses...)
			exec := &scriptedExecutor{t: t, output: tt.output, failOn: tt.failOn}

			_, err := NewWhisperTranscriber(cfg, exec, http.DefaultClient).Transcribe(context.Background(), srv.URL)
			if !errors.Is(err, errs.ErrTranscription) {
				t.Errorf("Transcribe() error = %v, want ErrTranscription", err)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("download attempts = %d, want %d", hits.Load(), tt.wantHits)
			}
			entries, _ := os.ReadDir(cfg.TempDir)
			if len(entries) != 0 {
				t.Errorf("scratch directory not removed: %v", entries)
			}
		})
	}
}

func TestParseWhisperOutputEmpty(t *testing.T) {
	got, err := parseWhisperOutput([]byte(`{"result":{"language":"en"},"transcription":[{"offsets":{"from":0,"to":500},"text":"  "}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "" {
		t.Errorf("text = %q, want empty", got.Text)
	}
}
