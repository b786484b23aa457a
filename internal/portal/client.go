package portal

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kiranshivaraju/portalpilot/internal/config"
)

const maxBodyBytes = 10 << 20

var jobIDPattern = regexp.MustCompile(`const jobId = '([^']+)';`)

// Client is the interface for driving portal jobs.
type Client interface {
	Submit(ctx context.Context, job *Job) error
	Poll(job *Job, opts PollOptions) *Poller
	FetchResults(ctx context.Context, job *Job) (string, error)
}

// PollOptions controls a Poller. Zero values fall back to the client defaults.
type PollOptions struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// HTTPClient implements Client against the portal's HTTP endpoints.
type HTTPClient struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
	dumpPath     string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient creates a portal client from cfg.
func NewHTTPClient(cfg config.PortalConfig) *HTTPClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// The portal serves a self-signed enterprise certificate.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		slog.Warn("portal TLS certificate verification disabled", "base_url", cfg.BaseURL)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}

	return &HTTPClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		pollInterval: pollInterval,
		maxWait:      maxWait,
		dumpPath:     cfg.ResultsDumpPath,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Submit posts the job's prompt and records the job ID the portal assigns.
// The ID is left empty on any error.
func (c *HTTPClient) Submit(ctx context.Context, job *Job) error {
	if job.Submitted() {
		return fmt.Errorf("%w: %s", ErrAlreadySubmitted, job.id)
	}

	form := url.Values{"user_input": {job.prompt}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(httpReq, job)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "submit"); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading submit response: %v", ErrTransport, err)
	}

	id, err := extractJobID(string(body))
	if err != nil {
		return err
	}
	job.id = id

	slog.DebugContext(ctx, "portal job submitted", "job_id", id)
	return nil
}

// Poll returns a Poller over the job's status. No request is made until the
// first call to Next.
func (c *HTTPClient) Poll(job *Job, opts PollOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = c.pollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = c.maxWait
	}
	return &Poller{client: c, job: job, interval: opts.Interval, maxWait: opts.MaxWait}
}

// FetchResults downloads the job's HTML result page.
func (c *HTTPClient) FetchResults(ctx context.Context, job *Job) (string, error) {
	if !job.Submitted() {
		return "", ErrNotSubmitted
	}

	u := fmt.Sprintf("%s/results/%s", c.baseURL, url.PathEscape(job.id))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, job)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "results"); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading results: %v", ErrTransport, err)
	}

	if c.dumpPath != "" {
		if err := os.WriteFile(c.dumpPath, body, 0o644); err != nil {
			slog.WarnContext(ctx, "writing results dump failed", "path", c.dumpPath, "error", err)
		}
	}

	return string(body), nil
}

func (c *HTTPClient) fetchStatus(ctx context.Context, job *Job) (Snapshot, error) {
	u := fmt.Sprintf("%s/api/job/%s/status", c.baseURL, url.PathEscape(job.id))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, job)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Snapshot{}, classifyError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "status"); err != nil {
		return Snapshot{}, err
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decoding status response: %v", ErrTransport, err)
	}

	return snapshotFromMap(raw), nil
}

func (c *HTTPClient) setHeaders(req *http.Request, job *Job) {
	req.Header.Set("Cookie", "user_id="+job.userID)
	req.Header.Set("Referer", c.baseURL+"/dashboard")
}

// checkStatus is the success rule shared by every portal call: anything
// but 200 is ErrTransport.
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrTransport, op, resp.StatusCode)
	}
	return nil
}

// extractJobID pulls the job ID out of the markup returned by /submit.
func extractJobID(body string) (string, error) {
	m := jobIDPattern.FindStringSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("%w: job id not found in submit response", ErrSubmission)
	}
	return m[1], nil
}

// classifyError maps transport-level errors to sentinel errors. Context
// errors stay matchable alongside ErrTransport.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: request timed out: %v", ErrTransport, err)
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
