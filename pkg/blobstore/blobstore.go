package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAttachmentBytes caps how much of a provider media URL we mirror.
const maxAttachmentBytes = 10 << 20

// Store keeps attachment bytes on local disk and hands back public URLs
// under the service's base URL. Failures here degrade a broadcast to
// text-only; they never abort it.
type Store struct {
	dir     string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func New(dir, baseURL string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}, nil
}

// Dir returns the directory served under /uploads/.
func (s *Store) Dir() string { return s.dir }

// Put writes attachment bytes and returns their public URL.
func (s *Store) Put(data []byte, mime string) (string, error) {
	name := uuid.New().String() + extensionFor(mime)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return s.baseURL + "/uploads/" + name, nil
}

// Mirror downloads provider-hosted media and re-hosts it under this
// service, so recipients get a stable link. Provider media URLs expire.
func (s *Store) Mirror(ctx context.Context, mediaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read media body: %w", err)
	}

	url, err := s.Put(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}

	s.logger.Debug("attachment mirrored",
		zap.String("source", mediaURL),
		zap.Int("bytes", len(data)))
	return url, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
