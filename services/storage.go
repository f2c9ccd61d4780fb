package services

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog/log"

	"github.com/TheClusterFlux/replay-hub/config"
	"github.com/TheClusterFlux/replay-hub/types"
)

const (
	// Large objects are split into 64MB parts uploaded up to 10 at a time.
	multipartPartSize    = 64 << 20
	multipartConcurrency = 10

	// Stored objects are immutable once written.
	remoteCacheControl = "public, max-age=29030400, immutable"

	localURLPrefix = "/files"
)

// Streaming-manifest and segment extensions need explicit types; stdlib mime
// tables miss or misreport them.
var contentTypeOverrides = map[string]string{
	".m3u8": "application/x-mpegURL",
	".ts":   "video/MP2T",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

// ContentTypeFor derives an object content type from the file extension.
func ContentTypeFor(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ct, ok := contentTypeOverrides[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Storage decides where a finished asset lives: the S3 bucket when remote
// placement is requested and configured, the local upload directory
// otherwise.
type Storage struct {
	uploader *s3manager.Uploader
	bucket   string
	region   string
}

func NewStorage(cfg config.Config) *Storage {
	s := &Storage{bucket: cfg.S3Bucket, region: cfg.S3Region}
	if cfg.S3Bucket == "" {
		return s
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.S3Region)
	if cfg.AWSAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AWSAccessKey, cfg.AWSSecretKey, ""))
	}

	s.uploader = s3manager.NewUploader(session.Must(session.NewSession(awsCfg)), func(u *s3manager.Uploader) {
		u.PartSize = multipartPartSize
		u.Concurrency = multipartConcurrency
	})

	return s
}

// RemoteEnabled reports whether a bucket is configured at all.
func (s *Storage) RemoteEnabled() bool {
	return s.uploader != nil
}

// Place returns an access URL for localPath and whether it is remote. A
// failed or unconfigured remote placement returns ErrUploadFailed; the
// caller's policy is to fall back to LocalURL rather than abort ingestion.
func (s *Storage) Place(ctx context.Context, localPath string, preferRemote bool) (string, bool, error) {
	if !preferRemote {
		return s.LocalURL(localPath), false, nil
	}
	if s.uploader == nil {
		return "", false, fmt.Errorf("%w: no bucket configured", types.ErrUploadFailed)
	}

	url, err := s.putObject(ctx, localPath)
	if err != nil {
		return "", false, err
	}

	return url, true, nil
}

func (s *Storage) putObject(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrUploadFailed, err)
	}
	defer f.Close()

	key := filepath.Base(localPath)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String(ContentTypeFor(localPath)),
		CacheControl: aws.String(remoteCacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrUploadFailed, err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	log.Info().Str("bucket", s.bucket).Str("key", key).Msg("object uploaded")

	return url, nil
}

// LocalURL returns the locally-served URL for a retained file.
func (s *Storage) LocalURL(localPath string) string {
	return path.Join(localURLPrefix, filepath.Base(localPath))
}
