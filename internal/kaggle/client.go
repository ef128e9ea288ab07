// Package kaggle downloads and extracts public datasets through the Kaggle
// HTTP API.
package kaggle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/mholt/archiver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://www.kaggle.com/api/v1"
	DefaultDataset   = "mainakml/vibeid-a-4-1"
	DefaultOutputDir = "vibeid-a-4-1/VIBeID_A_4_1"
)

// downloadTries is the first attempt plus one retry.
const downloadTries = 2

type Client struct {
	BaseURL       string
	Credentials   Credentials
	HTTPClient    *http.Client
	RetryInterval time.Duration
	Logger        *zap.SugaredLogger
}

func NewClient(creds Credentials, logger *zap.SugaredLogger) *Client {
	return &Client{
		BaseURL:       DefaultBaseURL,
		Credentials:   creds,
		HTTPClient:    http.DefaultClient,
		RetryInterval: time.Second,
		Logger:        logger,
	}
}

func splitDataset(dataset string) (owner, name string, err error) {
	var parts = strings.Split(dataset, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("dataset %q is not owner/name", dataset)
	}
	return parts[0], parts[1], nil
}

// DownloadDataset fetches the dataset archive and unpacks it into outputDir.
// Nothing is downloaded when outputDir already has content. The returned
// flag reports whether a download happened.
func (c *Client) DownloadDataset(ctx context.Context, dataset, outputDir string) (bool, error) {
	owner, name, err := splitDataset(dataset)
	if err != nil {
		return false, err
	}
	if Ready(outputDir) {
		c.Logger.Infow("dataset already present",
			"dataset", dataset,
			"outputDir", outputDir)
		return false, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return false, err
	}

	archive, err := os.CreateTemp("", "kaggle-*.zip")
	if err != nil {
		return false, err
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	var url = fmt.Sprintf("%v/datasets/download/%v/%v", strings.TrimRight(c.BaseURL, "/"), owner, name)
	var policy = backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryInterval
	size, err := backoff.Retry(ctx, func() (int64, error) {
		return c.fetch(ctx, url, archive)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(downloadTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.Logger.Warnw("download failed, retrying",
				"dataset", dataset,
				"error", err,
				"wait", wait)
		}))
	if err != nil {
		return false, errors.Wrapf(err, "download %v", dataset)
	}
	if err := archive.Close(); err != nil {
		return false, err
	}
	c.Logger.Infow("dataset downloaded",
		"dataset", dataset,
		"size", humanize.Bytes(uint64(size)))

	if err := archiver.NewZip().Unarchive(archive.Name(), outputDir); err != nil {
		return false, errors.Wrapf(err, "extract %v", dataset)
	}
	c.Logger.Infow("dataset extracted",
		"dataset", dataset,
		"outputDir", outputDir)
	return true, nil
}

// fetch writes the response body to dst from its start. Transport errors,
// 5xx and 429 responses are retryable, other failures are permanent.
func (c *Client) fetch(ctx context.Context, url string, dst *os.File) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.SetBasicAuth(c.Credentials.Username, c.Credentials.Key)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		err = errors.Errorf("%v: %v", url, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return 0, err
		}
		return 0, backoff.Permanent(err)
	}

	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return 0, backoff.Permanent(err)
	}
	if err := dst.Truncate(0); err != nil {
		return 0, backoff.Permanent(err)
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "read body")
	}
	return n, nil
}

// Ready reports whether dir exists and holds at least one entry.
func Ready(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
