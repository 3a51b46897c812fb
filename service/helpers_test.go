package service

import (
	"context"
	"errors"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"meetmate-worker/entities"
	"meetmate-worker/errs"
	"meetmate-worker/notifier"
	"meetmate-worker/repository"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestRepo(t *testing.T) repository.Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	r := repository.NewRepo(db)
	if err := r.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}

func newTestStore(t *testing.T) *FileTranscriptStore {
	t.Helper()
	s, err := NewFileTranscriptStore(filepath.Join(t.TempDir(), "audio_cache"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s
}

// fakeTranscriber returns a fixed transcript per source URL. URLs listed in
// fail return ErrTranscription.
type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	fail  map[string]bool
	calls map[string]int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, sourceURL string) (Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[sourceURL]++
	if f.fail[sourceURL] {
		return Transcript{}, errors.Join(errs.ErrTranscription, errors.New("download timed out"))
	}
	return Transcript{Text: f.text, Language: "en"}, nil
}

func (f *fakeTranscriber) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeSummarizer struct {
	mu      sync.Mutex
	summary Summary
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Summary{}, f.err
	}
	return f.summary, nil
}

func (f *fakeSummarizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	name string
	err  error
	mu   sync.Mutex
	seen []notifier.Publication
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Publish(ctx context.Context, p notifier.Publication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, p)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// countingDoer fails the test if the code under test reaches the network
// unexpectedly; tests that allow calls pass a real client.
type countingDoer struct {
	calls atomic.Int32
	next  HTTPDoer
}

func (d *countingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	if d.next == nil {
		return nil, errors.New("unexpected network call")
	}
	return d.next.Do(req)
}

func testSummary() Summary {
	return Summary{
		Text:  "Decisions: none. Actions: none.",
		Usage: entities.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model: "test-model",
	}
}
