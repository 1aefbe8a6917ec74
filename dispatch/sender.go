package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/signature"
)

const defaultSenderTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SendResult captures what one HTTP attempt produced. Err is set for
// network level failures where no response was received.
type SendResult struct {
	StatusCode int
	Duration   time.Duration
	Response   *http.Response
	Err        error
}

// Sender delivers one queue item as a signed POST. The payload bytes are
// sent verbatim; signing happens per attempt with a fresh timestamp.
type Sender struct {
	Client               HTTPDoer
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

func NewSender(client HTTPDoer) *Sender {
	if client == nil {
		client = &http.Client{Timeout: defaultSenderTimeout}
	}
	return &Sender{
		Client:               client,
		Timeout:              defaultSenderTimeout,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
		Now:                  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sender) Send(ctx context.Context, item core.QueueItem, secret string) SendResult {
	startedAt := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if s.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, s.Timeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, item.TargetURL, bytes.NewReader(item.Payload))
	if err != nil {
		return SendResult{Err: err, Duration: time.Since(startedAt)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(item.EventType))
	req.Header.Set("X-Webhook-Delivery", item.ID)
	if err := signature.Apply(req.Header, item.Payload, secret, s.now()); err != nil {
		return SendResult{Err: err, Duration: time.Since(startedAt)}
	}

	res, err := s.Client.Do(req)
	if err != nil {
		return SendResult{Err: err, Duration: time.Since(startedAt)}
	}
	defer res.Body.Close()

	// The response body is drained but not interpreted; only the status
	// code matters for classification.
	limit := s.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, limit))

	return SendResult{
		StatusCode: res.StatusCode,
		Duration:   time.Since(startedAt),
		Response:   res,
	}
}

func (s *Sender) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Outcome classification. Success is any 2xx. 408 and 429 are retried like
// server errors; every other 4xx is a permanent contract failure.
func classifyResult(result SendResult) string {
	if result.Err != nil {
		return core.AttemptOutcomeRetry
	}
	status := result.StatusCode
	switch {
	case status >= 200 && status < 300:
		return core.AttemptOutcomeSent
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return core.AttemptOutcomeRetry
	case status >= 400 && status < 500:
		return core.AttemptOutcomeFailed
	default:
		return core.AttemptOutcomeRetry
	}
}
