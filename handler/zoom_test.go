package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"meetmate-worker/config"
	"meetmate-worker/constant"
	"meetmate-worker/dto"
	"meetmate-worker/entities"
	"meetmate-worker/service"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	testSecret = "testsigningsecret"
	testToken  = "testverificationtoken"
)

type ingestCall struct {
	platform  constant.Platform
	meetingID string
	url       string
}

type fakeGateway struct {
	calls []ingestCall
	err   error
}

func (g *fakeGateway) Ingest(ctx context.Context, platform constant.Platform, meetingID, recordingURL string) (*entities.Recording, bool, error) {
	g.calls = append(g.calls, ingestCall{platform, meetingID, recordingURL})
	if g.err != nil {
		return nil, false, g.err
	}
	return &entities.Recording{ID: uuid.New(), Platform: platform, MeetingID: meetingID, RecordingURL: recordingURL, Stage: constant.StageNew}, true, nil
}

var testZoom = config.Zoom{SigningSecret: testSecret, VerificationToken: testToken}

func newRouter(gw service.Gateway) *gin.Engine {
	return newRouterWith(testZoom, gw)
}

func newRouterWith(cfg config.Zoom, gw service.Gateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/zoom", NewZoomWebhook(cfg, gw).Handle)
	return r
}

func post(r http.Handler, body []byte, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func recordingEvent(token string, object map[string]any) []byte {
	body, _ := json.Marshal(map[string]any{
		"event":   "recording.completed",
		"meta":    map[string]string{"token": token},
		"payload": map[string]any{"object": object},
	})
	return body
}

func TestZoomWebhookAccepts(t *testing.T) {
	gw := &fakeGateway{}
	r := newRouter(gw)

	body := recordingEvent(testToken, map[string]any{
		"uuid":         "test-uuid-123",
		"download_url": "https://example.com/fake.mp4",
	})
	w := post(r, body, "sha256="+sign(testSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("response = %v", resp)
	}
	want := ingestCall{constant.PlatformZoom, "test-uuid-123", "https://example.com/fake.mp4"}
	if len(gw.calls) != 1 || gw.calls[0] != want {
		t.Errorf("calls = %+v", gw.calls)
	}
}

func TestZoomWebhookRecordingFilesFallback(t *testing.T) {
	gw := &fakeGateway{}
	r := newRouter(gw)

	body := recordingEvent(testToken, map[string]any{
		"uuid": "m-2",
		"recording_files": []map[string]string{
			{"file_type": "M4A", "download_url": "https://zoom/audio"},
			{"file_type": "MP4", "download_url": "https://zoom/video"},
		},
	})
	w := post(r, body, "sha256="+sign(testSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(gw.calls) != 1 || gw.calls[0].url != "https://zoom/video" {
		t.Errorf("calls = %+v", gw.calls)
	}
}

func TestZoomWebhookRejects(t *testing.T) {
	valid := recordingEvent(testToken, map[string]any{"uuid": "m1", "download_url": "https://x"})
	wrongToken := recordingEvent("nope", map[string]any{"uuid": "m1", "download_url": "https://x"})
	noURL := recordingEvent(testToken, map[string]any{"uuid": "m1"})
	malformed := []byte(`{"payload":`)

	secretOnly := config.Zoom{SigningSecret: testSecret}
	anyToken := recordingEvent("chosen-by-caller", map[string]any{"uuid": "m1", "download_url": "https://x"})

	tests := []struct {
		name   string
		zoom   config.Zoom
		body   []byte
		auth   string
		status int
	}{
		{"missing signature", testZoom, valid, "", http.StatusUnauthorized},
		{"wrong secret", testZoom, valid, "sha256=" + sign("other", valid), http.StatusUnauthorized},
		{"not hex", testZoom, valid, "sha256=zz", http.StatusUnauthorized},
		{"tampered body", testZoom, append([]byte{}, valid[:len(valid)-1]...), "sha256=" + sign(testSecret, valid), http.StatusUnauthorized},
		{"wrong verification token", testZoom, wrongToken, "sha256=" + sign(testSecret, wrongToken), http.StatusUnauthorized},
		{"malformed json", testZoom, malformed, "sha256=" + sign(testSecret, malformed), http.StatusBadRequest},
		{"missing download url", testZoom, noURL, "sha256=" + sign(testSecret, noURL), http.StatusBadRequest},
		{"no verification token configured", secretOnly, anyToken, "sha256=" + sign(testSecret, anyToken), http.StatusUnauthorized},
		{"no signing secret configured", config.Zoom{VerificationToken: testToken}, valid, "sha256=" + sign("", valid), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			w := post(newRouterWith(tt.zoom, gw), tt.body, tt.auth)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if len(gw.calls) != 0 {
				t.Errorf("rejected request reached the gateway: %+v", gw.calls)
			}
		})
	}
}

func TestZoomWebhookStoreErrors(t *testing.T) {
	body := recordingEvent(testToken, map[string]any{"uuid": "m1", "download_url": "https://x"})
	auth := "sha256=" + sign(testSecret, body)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: bad", service.ErrInvalidIngest), http.StatusBadRequest},
		{"database down", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newRouter(&fakeGateway{err: tt.err}), body, auth)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestZoomWebhookURLValidation(t *testing.T) {
	gw := &fakeGateway{}
	body, _ := json.Marshal(map[string]any{
		"event":   "endpoint.url_validation",
		"payload": map[string]string{"plainToken": "abc123"},
	})

	w := post(newRouter(gw), body, "sha256="+sign(testSecret, body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp dto.ZoomURLValidationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PlainToken != "abc123" || resp.EncryptedToken != sign(testSecret, []byte("abc123")) {
		t.Errorf("response = %+v", resp)
	}
	if len(gw.calls) != 0 {
		t.Error("validation challenge must not ingest")
	}
}

func TestIngestHandler(t *testing.T) {
	gw := &fakeGateway{}
	deps := ServiceDependencies{Gateway: gw}

	body, _ := json.Marshal(dto.IngestMessage{Platform: "google_meet", MeetingID: "file-1", RecordingURL: "https://drive/1"})
	if err := IngestHandler(context.Background(), amqp.Delivery{Body: body}, deps); err != nil {
		t.Fatalf("IngestHandler: %v", err)
	}
	want := ingestCall{constant.PlatformGoogleMeet, "file-1", "https://drive/1"}
	if len(gw.calls) != 1 || gw.calls[0] != want {
		t.Errorf("calls = %+v", gw.calls)
	}

	if err := IngestHandler(context.Background(), amqp.Delivery{Body: []byte("{")}, deps); err == nil {
		t.Error("expected decode error")
	}
}
