package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parlor/internal/models"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

// Uploader stores one submitted image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, r Requester, photo string) (string, error)
}

const (
	maxImageBytes = 10 << 20
	webpQuality   = 70
)

// decodePhoto strips an optional data-URL prefix, base64-decodes the
// payload, and validates it as a real image. Everything but webp is
// re-encoded to webp.
func decodePhoto(photo string) ([]byte, error) {
	if photo == "" {
		return nil, models.NewValidationError("photo is required")
	}
	if i := strings.Index(photo, ","); i >= 0 && strings.HasPrefix(photo, "data:") {
		photo = photo[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(photo)
	if err != nil {
		return nil, models.NewValidationError("photo is not valid base64")
	}
	if len(raw) > maxImageBytes {
		return nil, models.NewValidationError(fmt.Sprintf("image too large (max %dMB)", maxImageBytes>>20))
	}

	decoded, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, models.NewValidationError("photo is not a valid image")
	}
	if format == "webp" {
		return raw, nil
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, decoded, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, models.NewInternalError(err)
	}
	return buf.Bytes(), nil
}

// LocalUploader writes images to a directory served by the static file
// route. Filenames are content hashes, so re-uploads deduplicate for free.
type LocalUploader struct {
	dir     string
	baseURL string
}

// NewLocalUploader creates an uploader rooted at dir, serving URLs under
// baseURL (for example "/images").
func NewLocalUploader(dir, baseURL string) *LocalUploader {
	return &LocalUploader{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (u *LocalUploader) Upload(_ context.Context, _ Requester, photo string) (string, error) {
	data, err := decodePhoto(photo)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ".webp"

	if err := os.MkdirAll(u.dir, 0o750); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := os.WriteFile(filepath.Join(u.dir, name), data, 0o600); err != nil {
		return "", models.NewInternalError(err)
	}
	return u.baseURL + "/" + name, nil
}

// HostUploader posts images to an external image-host API and relays the
// returned URL. Endpoint and token come from the config store so they can
// change without a restart.
type HostUploader struct {
	settings *ConfigService
	client   *http.Client
}

func NewHostUploader(settings *ConfigService) *HostUploader {
	return &HostUploader{
		settings: settings,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type hostUploadResult struct {
	Data struct {
		Link string `json:"link"`
	} `json:"data"`
	Success bool `json:"success"`
}

func (u *HostUploader) Upload(ctx context.Context, _ Requester, photo string) (string, error) {
	data, err := decodePhoto(photo)
	if err != nil {
		return "", err
	}
	endpoint, err := u.settings.Get(ctx, KeyImageHostURL)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if endpoint == "" {
		return "", models.NewValidationError("image host is not configured")
	}
	token, _ := u.settings.Get(ctx, KeyImageHostToken)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "upload.webp")
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := mw.Close(); err != nil {
		return "", models.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", models.NewInternalError(fmt.Errorf("image host returned status %d", resp.StatusCode))
	}

	var result hostUploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", models.NewInternalError(err)
	}
	if !result.Success || result.Data.Link == "" {
		return "", models.NewInternalError(fmt.Errorf("image host rejected the upload"))
	}
	return result.Data.Link, nil
}

// ImageService routes uploads to the local or external uploader according
// to the imageStorage config key.
type ImageService struct {
	settings *ConfigService
	local    Uploader
	host     Uploader
}

func NewImageService(settings *ConfigService, local, host Uploader) *ImageService {
	return &ImageService{settings: settings, local: local, host: host}
}

func (s *ImageService) Upload(ctx context.Context, r Requester, photo string) (string, error) {
	storage, err := s.settings.Get(ctx, KeyImageStorage)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if storage == "host" {
		return s.host.Upload(ctx, r, photo)
	}
	return s.local.Upload(ctx, r, photo)
}
