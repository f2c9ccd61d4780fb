package services

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheClusterFlux/replay-hub/types"
)

// Fetcher downloads a source URL into staging so the rest of the pipeline
// sees the same local file it would after a direct upload.
type Fetcher struct {
	client  *http.Client
	staging *Staging
}

func NewFetcher(staging *Staging, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		staging: staging,
	}
}

// Download streams the URL body to a staged file and returns its path.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", types.InvalidArgumentf("unsupported source url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", types.InvalidArgumentf("bad source url %q: %v", rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", types.InvalidArgumentf("fetching %q: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", types.InvalidArgumentf("source url returned %s", resp.Status)
	}

	path, err := f.staging.Save(resp.Body, filepath.Ext(u.Path))
	if err != nil {
		return "", err
	}

	log.Info().Str("url", rawURL).Str("path", path).Msg("source url fetched")

	return path, nil
}
