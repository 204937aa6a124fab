package events

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"genflow/internal/logging"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Subscriber maintains a long-lived server-sent event connection to the
// generation service's job stream and feeds every decoded event to the
// reconciler. Transport faults trigger a reconnect with capped backoff;
// accumulated run state is never cleared on disconnect.
type Subscriber struct {
	baseURL        string
	httpClient     *http.Client
	reconciler     *Reconciler
	logger         *slog.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// SubscriberOption customizes a Subscriber.
type SubscriberOption func(*Subscriber)

// WithHTTPClient overrides the default HTTP client. The client must not set
// an overall request timeout: the stream is intentionally long-lived.
func WithHTTPClient(client *http.Client) SubscriberOption {
	return func(s *Subscriber) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, max time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if initial > 0 {
			s.initialBackoff = initial
		}
		if max >= initial {
			s.maxBackoff = max
		}
	}
}

// NewSubscriber constructs a Subscriber for the given service base URL.
func NewSubscriber(baseURL string, reconciler *Reconciler, logger *slog.Logger, opts ...SubscriberOption) *Subscriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	sub := &Subscriber{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:     &http.Client{},
		reconciler:     reconciler,
		logger:         logger,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(sub)
	}
	return sub
}

// Run streams events for the given run until ctx is cancelled. It returns
// ctx.Err() on cancellation; every other failure is retried internally.
func (s *Subscriber) Run(ctx context.Context, runID string) error {
	backoff := s.initialBackoff
	for {
		delivered, err := s.streamOnce(ctx, runID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered > 0 {
			backoff = s.initialBackoff
		}
		if err != nil {
			s.logger.Warn("event stream interrupted, reconnecting",
				logging.String(logging.FieldRunID, runID),
				logging.Duration("retry_in", backoff),
				logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < s.maxBackoff {
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
		}
	}
}

// streamOnce opens one connection and drains it, returning how many events
// were delivered to the reconciler.
func (s *Subscriber) streamOnce(ctx context.Context, runID string) (int, error) {
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%s/stream", s.baseURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("event stream: request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("event stream: connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("event stream: http %d", resp.StatusCode)
	}

	delivered := 0
	var data strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(data.String())
				delivered++
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Other SSE fields (event:, id:, retry:) carry nothing the
			// envelope does not already include.
		}
	}
	if data.Len() > 0 {
		s.dispatch(data.String())
		delivered++
	}
	if err := scanner.Err(); err != nil {
		return delivered, fmt.Errorf("event stream: read: %w", err)
	}
	return delivered, fmt.Errorf("event stream: closed by server")
}

func (s *Subscriber) dispatch(payload string) {
	ev, err := Decode([]byte(payload))
	if err != nil {
		s.logger.Warn("dropping undecodable event", logging.Error(err))
		return
	}
	s.reconciler.Apply(ev)
}
