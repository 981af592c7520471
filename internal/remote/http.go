package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
)

// transport performs one JSON request/response cycle with the shared retry
// policy. It is used by both Client and Auth.
type transport struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries uint64
	backoff    func() *backoff.ExponentialBackOff
	logger     *slog.Logger
}

func newTransport(config *Config) *transport {
	t := &transport{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: config.HTTPClient,
		timeout:    config.RequestTimeout,
		maxRetries: config.MaxRetries,
		logger:     config.Logger,
	}
	initial := config.InitialBackoff
	if t.httpClient == nil {
		t.httpClient = &http.Client{}
	}
	if t.timeout <= 0 {
		t.timeout = 10 * time.Second
	}
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.backoff = func() *backoff.ExponentialBackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 0
		return b
	}
	return t
}

// do sends method path with body encoded as JSON and decodes the response
// into out (when non-nil). Network failures and 5xx responses are retried with
// exponential backoff; every other failure returns at once.
func (t *transport) do(ctx context.Context, method, path, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to encode request", err)
		}
	}

	attempt := func() error {
		err := t.once(ctx, method, path, token, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(t.backoff(), t.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		t.logger.Debug("retrying request", "method", method, "path", path, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

func (t *transport) once(ctx context.Context, method, path, token string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+APIPrefix+path, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.Wrap(apperrors.ErrTimeout, fmt.Sprintf("%s %s timed out", method, path), err)
		}
		return apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "failed to read response", err)
	}

	if resp.StatusCode >= 300 {
		return statusError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to decode response", err)
	}
	return nil
}

// statusError maps an HTTP failure onto the error taxonomy.
func statusError(method, path string, status int, body []byte) error {
	var envelope ErrorBody
	_ = json.Unmarshal(body, &envelope)
	msg := envelope.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	msg = fmt.Sprintf("%s %s: %d %s", method, path, status, msg)

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.New(apperrors.ErrValidation, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(apperrors.ErrAuth, msg)
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, msg)
	case status == http.StatusConflict:
		return apperrors.New(apperrors.ErrConflict, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperrors.New(apperrors.ErrTimeout, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return apperrors.New(apperrors.ErrNetwork, msg)
	default:
		return apperrors.New(apperrors.ErrInternal, msg)
	}
}
