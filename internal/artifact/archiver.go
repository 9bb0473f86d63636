// Package artifact stores proof-of-submission screenshots, either on local
// disk or in S3, along with a reduced thumbnail for the review UI.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"ats-autopilot/internal/config"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Recorder persists artifact locations next to the application record.
type Recorder interface {
	RecordArtifact(ctx context.Context, applicationID, kind, location string) error
}

// Archiver copies submission screenshots into durable storage and records
// their locations.
type Archiver struct {
	uploader       uploader
	recorder       Recorder
	thumbnailWidth int
}

// New chooses S3 when a bucket is configured, local disk otherwise.
func New(ctx context.Context, cfg config.Config, recorder Recorder) (*Archiver, error) {
	width := cfg.ThumbnailWidth
	if width <= 0 {
		width = 480
	}

	var up uploader
	if cfg.ScreenshotS3Bucket != "" {
		client, err := newS3Client(ctx, cfg.ScreenshotS3Region)
		if err != nil {
			return nil, err
		}
		up = &s3Uploader{client: client, bucket: cfg.ScreenshotS3Bucket}
	} else {
		dir := cfg.ScreenshotDir
		if dir == "" {
			dir = "./screenshots"
		}
		up = &localUploader{baseDir: dir}
	}
	return &Archiver{uploader: up, recorder: recorder, thumbnailWidth: width}, nil
}

// NewWithUploader wires a specific uploader (used by tests).
func NewWithUploader(up uploader, recorder Recorder, thumbnailWidth int) *Archiver {
	if thumbnailWidth <= 0 {
		thumbnailWidth = 480
	}
	return &Archiver{uploader: up, recorder: recorder, thumbnailWidth: thumbnailWidth}
}

func newS3Client(ctx context.Context, region string) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Archive stores the screenshot at screenshotPath plus a thumbnail, keyed by
// application ID, and records both locations. Returns the full-size location.
func (a *Archiver) Archive(ctx context.Context, applicationID, screenshotPath string) (string, error) {
	data, err := os.ReadFile(screenshotPath)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(screenshotPath))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		ext = ".png"
	}
	fullKey := sanitizeKey(applicationID + "/submission" + ext)
	location, err := a.uploader.Upload(ctx, fullKey, data, mimeForExt(ext))
	if err != nil {
		return "", fmt.Errorf("upload screenshot: %w", err)
	}
	if a.recorder != nil {
		if err := a.recorder.RecordArtifact(ctx, applicationID, "screenshot", location); err != nil {
			return "", err
		}
	}

	// Thumbnail failures are tolerable; the full screenshot is the record.
	if thumbLoc, err := a.storeThumbnail(ctx, applicationID, data); err == nil && a.recorder != nil {
		_ = a.recorder.RecordArtifact(ctx, applicationID, "thumbnail", thumbLoc)
	}
	return location, nil
}

func (a *Archiver) storeThumbnail(ctx context.Context, applicationID string, data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	thumb := imaging.Resize(img, a.thumbnailWidth, 0, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	key := sanitizeKey(applicationID + "/thumbnail.jpg")
	return a.uploader.Upload(ctx, key, buf.Bytes(), "image/jpeg")
}

func mimeForExt(ext string) string {
	if ext == ".jpg" || ext == ".jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
