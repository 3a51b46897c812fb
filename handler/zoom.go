package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"io"
	"meetmate-worker/config"
	"meetmate-worker/constant"
	"meetmate-worker/dto"
	"meetmate-worker/errs"
	"meetmate-worker/service"
	"net/http"
	"strings"
)

const (
	maxWebhookBody       = 1 << 20
	signaturePrefix      = "sha256="
	eventURLValidation   = "endpoint.url_validation"
	zoomRecordingFileMP4 = "MP4"
)

type ZoomWebhook struct {
	signingSecret     string
	verificationToken string
	gateway           service.Gateway
}

func NewZoomWebhook(cfg config.Zoom, gateway service.Gateway) *ZoomWebhook {
	return &ZoomWebhook{
		signingSecret:     cfg.SigningSecret,
		verificationToken: cfg.VerificationToken,
		gateway:           gateway,
	}
}

// Handle accepts a Zoom recording event. The body is authenticated with the
// HMAC signature in the Authorization header before it is parsed.
func (h *ZoomWebhook) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := h.verifySignature(c.GetHeader("Authorization"), body); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("error_kind", errs.Kind(err)).Msg("rejected zoom webhook")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event dto.ZoomEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if event.Event == eventURLValidation {
		c.JSON(http.StatusOK, dto.ZoomURLValidationResponse{
			PlainToken:     event.Payload.PlainToken,
			EncryptedToken: sign(h.signingSecret, []byte(event.Payload.PlainToken)),
		})
		return
	}

	if err := h.verifyToken(event.Meta.Token); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("error_kind", errs.Kind(err)).Msg("rejected zoom webhook")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification token"})
		return
	}

	meetingID := event.Payload.Object.UUID
	recordingURL := downloadURL(event.Payload.Object)
	if meetingID == "" || recordingURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload.object.uuid and a download url are required"})
		return
	}

	_, _, err = h.gateway.Ingest(ctx, constant.PlatformZoom, meetingID, recordingURL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidIngest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("meeting_id", meetingID).Msg("failed to store zoom recording")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store recording"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ZoomWebhook) verifySignature(header string, body []byte) error {
	if h.signingSecret == "" {
		return errors.Join(errs.ErrAuthentication, errors.New("ZOOM_SIGNING_SECRET is not set"))
	}
	sig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return errors.Join(errs.ErrAuthentication, errors.New("missing sha256 signature"))
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return errors.Join(errs.ErrAuthentication, errors.New("signature is not hex"))
	}

	if !hmac.Equal(got, digest(h.signingSecret, body)) {
		return errors.Join(errs.ErrAuthentication, errors.New("signature mismatch"))
	}
	return nil
}

// verifyToken checks meta.token against the configured verification token.
func (h *ZoomWebhook) verifyToken(token string) error {
	if h.verificationToken == "" {
		return errors.Join(errs.ErrAuthentication, errors.New("ZOOM_VERIFICATION_TOKEN is not set"))
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.verificationToken)) != 1 {
		return errors.Join(errs.ErrAuthentication, errors.New("verification token mismatch"))
	}
	return nil
}

func downloadURL(obj dto.ZoomObject) string {
	if obj.DownloadURL != "" {
		return obj.DownloadURL
	}
	for _, f := range obj.RecordingFiles {
		if strings.EqualFold(f.FileType, zoomRecordingFileMP4) && f.DownloadURL != "" {
			return f.DownloadURL
		}
	}
	return ""
}

func digest(secret string, data []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return mac.Sum(nil)
}

func sign(secret string, data []byte) string {
	return hex.EncodeToString(digest(secret, data))
}
