package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
)

// maxErrorBody bounds how much of a failed response is kept on a ProtocolError.
const maxErrorBody = 2048

// Options tunes an HTTP client.
type Options struct {
	// Timeout bounds each attempt. Zero means 5s.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for idempotent GETs.
	MaxRetries int
	// Backoff returns the wait before retry n (starting at 0).
	Backoff    func(n int) time.Duration
	HTTPClient *http.Client
	Log        logger.Logger
}

type client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	retries int
	backoff func(int) time.Duration
	log     logger.Logger
}

func newClient(baseURL string, o Options) (*client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}
	c := &client{base: u, http: o.HTTPClient, timeout: o.Timeout, retries: o.MaxRetries, backoff: o.Backoff, log: o.Log}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.backoff == nil {
		c.backoff = nextBackoff
	}
	if c.log == nil {
		c.log = logger.NopLogger{}
	}
	return c, nil
}

// nextBackoff doubles from 100ms and caps at 2s.
func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 5 {
		attempts = 5
	}
	base := 100 * time.Millisecond * time.Duration(1<<attempts)
	if base > 2*time.Second {
		base = 2 * time.Second
	}
	return base
}

// do sends one request and decodes a 2xx JSON body into out. Only GETs are
// retried, and only on transport errors or 5xx responses.
func (c *client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		payload = b
	}
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	attempts := 1
	if method == http.MethodGet {
		attempts += c.retries
	}
	var err error
	for n := 0; n < attempts; n++ {
		if n > 0 {
			c.log.Warnf("%s: retry %d after %v", op, n, err)
			select {
			case <-ctx.Done():
				return &TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(c.backoff(n - 1)):
			}
		}
		err = c.once(ctx, op, method, u.String(), payload, out)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled)
	}
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Status >= 500
}

func (c *client) once(ctx context.Context, op, method, target string, payload []byte, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		var te *TransportError
		var pe *ProtocolError
		switch {
		case errors.As(err, &te):
			outcome = "transport"
		case errors.As(err, &pe):
			outcome = "protocol"
		}
		metrics.RunnerCalls.WithLabelValues(op, outcome).Inc()
		metrics.RunnerLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProtocolError{Op: op, Status: resp.StatusCode, Body: truncate(raw), Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, Status: resp.StatusCode, Body: truncate(raw), Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
