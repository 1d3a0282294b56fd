package boxcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/renameio/v2"
	"golang.org/x/exp/slog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/carbondale-church/archiver"
)

const (
	DefaultAPIURL   = "https://rest.boxcast.com"
	DefaultTokenURL = "https://rest.boxcast.com/oauth2/token"

	pageSize = 100
	maxPages = 50
)

type Config struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// RequestsPerSecond throttles calls to the REST API; downloads are not throttled
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	Retry             RetryConfig
}

// Client talks to the BoxCast REST API on behalf of a single account
type Client struct {
	apiURL   string
	http     *http.Client
	download *http.Client
	limiter  *rate.Limiter
	retry    RetryConfig
	logger   *slog.Logger
}

// NewClient returns a Client that authenticates using the OAuth2 client-credentials
// grant; tokens are fetched lazily and refreshed as they expire
func NewClient(ctx context.Context, logger *slog.Logger, cfg Config) *Client {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: cfg.RequestTimeout}
	authed := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	return newClient(logger, cfg, authed)
}

func newClient(logger *slog.Logger, cfg Config, httpClient *http.Client) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		http:     httpClient,
		download: &http.Client{},
		limiter:  rate.NewLimiter(limit, 1),
		retry:    cfg.Retry,
		logger:   logger,
	}
}

// ListBroadcasts returns every broadcast matching the query, sorted by start time.
// Records that can't be interpreted are returned separately as skipped entries
// rather than failing the whole listing.
func (c *Client) ListBroadcasts(ctx context.Context, q Query) ([]archiver.Broadcast, []archiver.Skipped, error) {
	params := url.Values{}
	params.Set("s", "starts_at")
	params.Set("l", strconv.Itoa(pageSize))
	if expr := q.rangeExpression(); expr != "" {
		params.Set("q", expr)
	}
	if q.IsLive {
		params.Set("filter.is_live", "true")
	}
	if q.HasRecording {
		params.Set("filter.has_recording", "true")
	}

	broadcasts := []archiver.Broadcast{}
	skipped := []archiver.Skipped{}
	for page := 0; page < maxPages; page++ {
		params.Set("p", strconv.Itoa(page))
		var records []broadcast
		if err := c.getJSON(ctx, "/account/broadcasts", params, &records); err != nil {
			return nil, nil, err
		}
		for i := range records {
			b, err := records[i].toBroadcast()
			if err != nil {
				c.logger.Warn("Skipping malformed broadcast", "broadcastId", records[i].Id, "error", err)
				skipped = append(skipped, archiver.Skipped{
					BroadcastId: records[i].Id,
					Title:       records[i].Name,
					Reason:      err.Error(),
				})
				continue
			}
			broadcasts = append(broadcasts, b)
		}
		if len(records) < pageSize {
			break
		}
	}
	return broadcasts, skipped, nil
}

func (c *Client) GetBroadcast(ctx context.Context, id string) (*archiver.Broadcast, error) {
	var record broadcast
	if err := c.getJSON(ctx, "/account/broadcasts/"+url.PathEscape(id), nil, &record); err != nil {
		return nil, err
	}
	b, err := record.toBroadcast()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// RequestDownload asks BoxCast to prepare a downloadable export of a recording. An
// export that was already requested is not an error.
func (c *Client) RequestDownload(ctx context.Context, recordingId string) error {
	path := "/account/recordings/" + url.PathEscape(recordingId) + "/download"
	err := c.do(ctx, http.MethodPost, path, nil, strings.NewReader("{}"), nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		c.logger.Info("Export already requested", "recordingId", recordingId)
		return nil
	}
	return err
}

func (c *Client) GetRecording(ctx context.Context, recordingId string) (*Recording, error) {
	var r Recording
	if err := c.getJSON(ctx, "/account/recordings/"+url.PathEscape(recordingId), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WaitForDownload polls a recording until its export is ready, returning the download
// URL. The caller bounds the wait through ctx.
func (c *Client) WaitForDownload(ctx context.Context, recordingId string, every time.Duration) (string, error) {
	for {
		r, err := c.GetRecording(ctx, recordingId)
		if err != nil {
			return "", err
		}
		c.logger.Info("Polled recording export", "recordingId", recordingId, "status", r.DownloadStatus)
		switch {
		case r.DownloadStatus == "ready":
			if r.DownloadURL == "" {
				return "", fmt.Errorf("%w: recording %s is ready but has no download_url", ErrDownloadFailed, recordingId)
			}
			return r.DownloadURL, nil
		case strings.HasPrefix(r.DownloadStatus, "failed"):
			return "", fmt.Errorf("%w: recording %s: %s", ErrDownloadFailed, recordingId, r.DownloadStatus)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(every):
		}
	}
}

// Download streams the file at downloadURL to dest. The file only appears at dest
// once it's complete.
func (c *Client) Download(ctx context.Context, downloadURL, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, err
	}
	res, err := c.download.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("got response %d when downloading recording", res.StatusCode)
	}

	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("failed to create pending file for %s: %w", dest, err)
	}
	defer pending.Cleanup()

	n, err := io.Copy(pending, res.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download recording to %s: %w", dest, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("failed to finalize %s: %w", dest, err)
	}
	return n, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// do sends a request, retrying transient failures (network errors, 429s and 5xxs)
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.ReadSeeker, out interface{}) error {
	operation := func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, path, params, body, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying BoxCast request", "method", method, "path", path, "error", err, "wait", wait)
	}
	opts := append(c.retry.options(), backoff.WithNotify(notify))
	_, err := backoff.Retry(ctx, operation, opts...)
	return err
}

// attempt makes a single request; errors that retrying can't fix are marked permanent
func (c *Client) attempt(ctx context.Context, method, path string, params url.Values, body io.ReadSeeker, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}
	if body != nil {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
	}

	u := c.apiURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var reqBody io.Reader
	if body != nil {
		reqBody = body
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		apiErr := &APIError{Method: method, Path: path, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
		if apiErr.Retryable() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response body from %s: %w", path, err))
	}
	return nil
}
