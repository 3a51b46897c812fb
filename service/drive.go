package service

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"meetmate-worker/constant"
	"sync"
)

type RemoteFile struct {
	ID   string
	Name string
	URL  string
}

type FileLister interface {
	ListVideos(ctx context.Context) ([]RemoteFile, error)
}

type DriveLister struct {
	svc      *drive.Service
	mimeType string
}

func NewDriveLister(ctx context.Context, credentialsPath, mimeType string) (*DriveLister, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &DriveLister{
		svc:      svc,
		mimeType: mimeType,
	}, nil
}

func (l *DriveLister) ListVideos(ctx context.Context) ([]RemoteFile, error) {
	var files []RemoteFile
	err := l.svc.Files.List().
		Q(fmt.Sprintf("mimeType='%s' and trashed=false", l.mimeType)).
		Fields("nextPageToken, files(id, name, webContentLink)").
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				url := f.WebContentLink
				if url == "" {
					url = "https://drive.google.com/uc?export=download&id=" + f.Id
				}
				files = append(files, RemoteFile{ID: f.Id, Name: f.Name, URL: url})
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// DrivePoller turns Drive video files into google_meet recordings. The seen
// set only saves round trips within one process; the gateway is what keeps
// ingestion idempotent.
type DrivePoller struct {
	lister  FileLister
	gateway Gateway

	mu   sync.Mutex
	seen map[string]bool
}

func NewDrivePoller(lister FileLister, gateway Gateway) *DrivePoller {
	return &DrivePoller{
		lister:  lister,
		gateway: gateway,
		seen:    make(map[string]bool),
	}
}

// Poll returns how many new recordings were created.
func (p *DrivePoller) Poll(ctx context.Context) (int, error) {
	files, err := p.lister.ListVideos(ctx)
	if err != nil {
		return 0, fmt.Errorf("list drive videos: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	created := 0
	for _, f := range files {
		if p.seen[f.ID] {
			continue
		}
		_, isNew, err := p.gateway.Ingest(ctx, constant.PlatformGoogleMeet, f.ID, f.URL)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("file_id", f.ID).Str("name", f.Name).Msg("failed to ingest drive recording")
			continue
		}
		p.seen[f.ID] = true
		if isNew {
			created++
		}
	}
	return created, nil
}
