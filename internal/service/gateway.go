package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"wabridge/internal/models"
	"wabridge/pkg/transport"
)

var (
	// ErrMissingRecipient is returned when a send request has no "to" field.
	ErrMissingRecipient = errors.New(`parameters "to" and "message" are required`)
	// ErrSessionNotFound is returned when no live connection exists for the
	// requested session.
	ErrSessionNotFound = errors.New("session not found")
)

// SendGateway validates and dispatches user-initiated outbound sends through
// the session's live connection.
type SendGateway struct {
	store   *SessionStore
	configs *ConfigStore
	client  *http.Client
	tmpDir  string
	logger  *logrus.Logger
}

func NewSendGateway(store *SessionStore, configs *ConfigStore, downloadTimeout time.Duration, logger *logrus.Logger) *SendGateway {
	return &SendGateway{
		store:   store,
		configs: configs,
		client:  &http.Client{Timeout: downloadTimeout},
		tmpDir:  os.TempDir(),
		logger:  logger,
	}
}

// Send dispatches req for session. Text sends go out as-is; media sends use
// the link-based payload; audio sends are transcoded to an Opus voice note.
// A successful send updates the session's last-activity timestamp.
func (g *SendGateway) Send(ctx context.Context, session string, req *models.SendRequest) (*models.SendResult, error) {
	if req == nil || req.To == "" {
		return nil, ErrMissingRecipient
	}

	conn, ok := g.store.Get(session)
	if !ok {
		return nil, ErrSessionNotFound
	}

	var messageID string
	var err error

	switch {
	case req.Type == models.MessageTypeText:
		if req.Text == nil {
			return nil, ErrMissingRecipient
		}
		messageID, err = conn.SendText(ctx, req.To, req.Text.Body)
	case req.Type == models.MessageTypeAudio:
		messageID, err = g.sendVoiceNote(ctx, conn, req)
	default:
		media := req.MediaLinkFor(req.Type)
		if media == nil {
			return nil, fmt.Errorf("missing %s payload", req.Type)
		}
		messageID, err = conn.SendMedia(ctx, req.To, req.Type, media.Link, media.Caption)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if err := g.configs.UpdateLastSent(session, float64(time.Now().Unix())); err != nil {
		g.logger.WithError(err).WithField("session", session).Warn("Failed to update last-sent timestamp")
	}

	return &models.SendResult{Messages: []models.SentMessage{{ID: messageID}}}, nil
}

// sendVoiceNote downloads the source audio, probes its duration, transcodes
// it to opus-in-ogg and sends the result as a voice note. Both temporary
// files are removed whether the send succeeds or not.
func (g *SendGateway) sendVoiceNote(ctx context.Context, conn transport.Conn, req *models.SendRequest) (string, error) {
	if req.Audio == nil {
		return "", fmt.Errorf("missing audio payload")
	}

	srcPath := filepath.Join(g.tmpDir, uuid.NewString()+".audio")
	dstPath := filepath.Join(g.tmpDir, uuid.NewString()+".ogg")
	defer os.Remove(srcPath)
	defer os.Remove(dstPath)

	if err := g.downloadToFile(ctx, req.Audio.Link, srcPath); err != nil {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}

	seconds, err := probeDurationSeconds(srcPath)
	if err != nil {
		g.logger.WithError(err).Warn("Failed to probe audio duration")
		seconds = 0
	}

	if err := ffmpeg.Input(srcPath).
		Output(dstPath, ffmpeg.KwArgs{"c:a": "libopus", "b:a": "32k", "ar": "48000", "ac": "1"}).
		OverWriteOutput().Silent(true).Run(); err != nil {
		return "", fmt.Errorf("failed to transcode audio: %w", err)
	}

	data, err := os.ReadFile(dstPath) // #nosec G304 - path generated locally
	if err != nil {
		return "", fmt.Errorf("failed to read transcoded audio: %w", err)
	}

	return conn.SendVoice(ctx, req.To, data, seconds)
}

func (g *SendGateway) downloadToFile(ctx context.Context, url, path string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio source returned status %d", resp.StatusCode)
	}

	out, err := os.Create(path) // #nosec G304 - path generated locally
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func probeDurationSeconds(path string) (uint32, error) {
	probe, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, err
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(probe), &result); err != nil {
		return 0, err
	}

	seconds, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, err
	}
	return uint32(seconds), nil
}
