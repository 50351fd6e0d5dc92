package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultURL is the canonical location of the applicant dataset.
const DefaultURL = "https://archive.ics.uci.edu/ml/machine-learning-databases/adult/adult.data"

// Fetcher downloads the dataset to a local path when it is not already
// cached there.
type Fetcher struct {
	client *resty.Client
	url    string
}

// NewFetcher builds a fetcher with the given request timeout. An empty
// url falls back to DefaultURL.
func NewFetcher(url string, timeout time.Duration) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetRetryCount(3)
	c.SetRetryWaitTime(2 * time.Second)
	return &Fetcher{client: c, url: url}
}

// Ensure returns immediately when path already exists, otherwise
// downloads the dataset and writes it there atomically.
func (f *Fetcher) Ensure(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Str("path", path).Msg("dataset already present")
		return nil
	}

	log.Info().Str("url", f.url).Str("path", path).Msg("downloading dataset")
	resp, err := f.client.R().SetContext(ctx).Get(f.url)
	if err != nil {
		return fmt.Errorf("fetch dataset: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("fetch dataset: status %d", resp.StatusCode())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, resp.Body(), 0o644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize dataset: %w", err)
	}
	log.Info().Int("bytes", len(resp.Body())).Msg("dataset downloaded")
	return nil
}
