package service

import (
	"context"
	"errors"
	"meetmate-worker/constant"
	"testing"
)

type fakeLister struct {
	files []RemoteFile
	err   error
}

func (l *fakeLister) ListVideos(ctx context.Context) ([]RemoteFile, error) {
	return l.files, l.err
}

func TestDrivePollerIngestsNewFiles(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	lister := &fakeLister{files: []RemoteFile{
		{ID: "file-1", Name: "standup.mp4", URL: "https://drive/1"},
		{ID: "file-2", Name: "retro.mp4", URL: "https://drive/2"},
	}}
	p := NewDrivePoller(lister, NewGateway(repo))

	n, err := p.Poll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Poll() = %d, %v", n, err)
	}
	n, err = p.Poll(ctx)
	if err != nil || n != 0 {
		t.Errorf("second Poll() = %d, %v", n, err)
	}

	rec, err := repo.FindByIdentity(ctx, constant.PlatformGoogleMeet, "file-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.RecordingURL != "https://drive/1" || rec.Stage != constant.StageNew {
		t.Errorf("recording = %+v", rec)
	}

	// a fresh poller, as after a restart, must not duplicate rows
	n, err = NewDrivePoller(lister, NewGateway(repo)).Poll(ctx)
	if err != nil || n != 0 {
		t.Errorf("restarted Poll() = %d, %v", n, err)
	}
}

func TestDrivePollerSkipsBadFiles(t *testing.T) {
	lister := &fakeLister{files: []RemoteFile{{ID: "no-url"}, {ID: "ok", URL: "https://drive/ok"}}}
	p := NewDrivePoller(lister, NewGateway(newTestRepo(t)))

	n, err := p.Poll(context.Background())
	if err != nil || n != 1 {
		t.Errorf("Poll() = %d, %v", n, err)
	}
}

func TestDrivePollerListError(t *testing.T) {
	p := NewDrivePoller(&fakeLister{err: errors.New("quota")}, NewGateway(newTestRepo(t)))

	if _, err := p.Poll(context.Background()); err == nil {
		t.Error("expected list error")
	}
}
