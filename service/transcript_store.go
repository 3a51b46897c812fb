package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"github.com/minio/minio-go/v7"
	"io"
	"meetmate-worker/dto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// safeName maps a meeting id to a file or object name. Ids that needed
// rewriting get a short hash suffix so two ids never share an artifact.
func safeName(meetingID string) string {
	name := unsafeNameChars.ReplaceAllString(meetingID, "_")
	name = strings.Trim(name, ".")
	if name == meetingID && name != "" {
		return name
	}
	sum := sha1.Sum([]byte(meetingID))
	return name + "-" + hex.EncodeToString(sum[:4])
}

func toArtifact(meetingID string, t Transcript) dto.TranscriptArtifact {
	segments := make([]dto.TranscriptSegment, 0, len(t.Segments))
	for _, s := range t.Segments {
		segments = append(segments, dto.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return dto.TranscriptArtifact{
		MeetingID:       meetingID,
		Text:            t.Text,
		Language:        t.Language,
		Segments:        segments,
		DurationSeconds: t.Duration.Seconds(),
		CreatedAt:       time.Now().UTC(),
	}
}

func fromArtifact(raw []byte) (Transcript, error) {
	var a dto.TranscriptArtifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript artifact: %w", err)
	}
	t := Transcript{
		Text:     a.Text,
		Language: a.Language,
		Duration: time.Duration(a.DurationSeconds * float64(time.Second)),
	}
	for _, s := range a.Segments {
		t.Segments = append(t.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return t, nil
}

type FileTranscriptStore struct {
	dir string
}

func NewFileTranscriptStore(dir string) (*FileTranscriptStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileTranscriptStore{
		dir: dir,
	}, nil
}

// Save writes <dir>/<meeting id>.json through a temp file and a rename, so
// readers see either the previous artifact or the complete new one.
func (s *FileTranscriptStore) Save(ctx context.Context, meetingID string, t Transcript) (string, error) {
	raw, err := json.MarshalIndent(toArtifact(meetingID, t), "", "  ")
	if err != nil {
		return "", err
	}

	dest := filepath.Join(s.dir, safeName(meetingID)+".json")
	tmp, err := os.CreateTemp(s.dir, ".transcript-*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *FileTranscriptStore) Load(ctx context.Context, location string) (Transcript, error) {
	raw, err := os.ReadFile(location)
	if err != nil {
		return Transcript{}, err
	}
	return fromArtifact(raw)
}

func (s *FileTranscriptStore) LoadText(ctx context.Context, location string) (string, error) {
	t, err := s.Load(ctx, location)
	if err != nil {
		return "", err
	}
	return t.Text, nil
}

const minioScheme = "minio://"

type MinIOTranscriptStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOTranscriptStore(client *minio.Client, bucket string) *MinIOTranscriptStore {
	return &MinIOTranscriptStore{
		client: client,
		bucket: bucket,
	}
}

func (s *MinIOTranscriptStore) Save(ctx context.Context, meetingID string, t Transcript) (string, error) {
	raw, err := json.Marshal(toArtifact(meetingID, t))
	if err != nil {
		return "", err
	}

	key := "transcripts/" + safeName(meetingID) + ".json"
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return minioScheme + s.bucket + "/" + key, nil
}

func (s *MinIOTranscriptStore) Load(ctx context.Context, location string) (Transcript, error) {
	bucket, key, err := parseMinIOLocation(location)
	if err != nil {
		return Transcript{}, err
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Transcript{}, err
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return Transcript{}, err
	}
	return fromArtifact(raw)
}

func (s *MinIOTranscriptStore) LoadText(ctx context.Context, location string) (string, error) {
	t, err := s.Load(ctx, location)
	if err != nil {
		return "", err
	}
	return t.Text, nil
}

func parseMinIOLocation(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, minioScheme)
	if !ok {
		return "", "", fmt.Errorf("not a minio location: %q", location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed minio location: %q", location)
	}
	return bucket, key, nil
}
