// Package llm is the streaming transport to the generation endpoint.
//
// LLM streaming endpoints can stall indefinitely without closing the
// connection, so waiting for HTTP completion alone would hang forever. The
// client decouples "connection still open" from "content still arriving"
// with a periodic liveness monitor, and retries stalls, transport failures
// and empty completions up to a bounded attempt count.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Status is the transport liveness state exposed to callers so progress UI
// can stay honest instead of showing a frozen spinner.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusStreaming  Status = "streaming"
	StatusWaiting    Status = "waiting"
	StatusTimeout    Status = "timeout"
	StatusError      Status = "error"
)

// Message is one role-tagged block in the request message list.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one logical completion call. The engine always streams.
type Request struct {
	Model    string
	Messages []Message
}

// Usage carries token totals reported by the endpoint for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Add accumulates another call's totals. Totals only grow.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Result is the outcome of a successful StreamCompletion call.
type Result struct {
	Text     string
	Usage    Usage
	Attempts int
}

// HTTPError is a non-success response status. It is terminal: the endpoint
// answered, so re-sending the identical request is pointless.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

var (
	// ErrStalled reports that no delta arrived within the stall threshold on
	// the final attempt.
	ErrStalled = errors.New("stream stalled")
	// ErrEmptyCompletion reports an HTTP-success stream that produced no
	// usable content.
	ErrEmptyCompletion = errors.New("stream completed with empty content")
)

const (
	defaultStallTimeout  = 90 * time.Second
	defaultMonitorPeriod = 2 * time.Second
	defaultWaitingAfter  = 10 * time.Second
	defaultMaxAttempts   = 3
	defaultRetryDelayCap = 30 * time.Second
)

// Options configures a Client. Zero values pick the production defaults;
// tests shrink the timing knobs.
type Options struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
	Logger     *slog.Logger

	StallTimeout  time.Duration
	MonitorPeriod time.Duration
	WaitingAfter  time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
}

// Client issues streaming completion calls against one endpoint.
type Client struct {
	baseURL string
	apiKey  string

	httpClient *http.Client
	log        *slog.Logger

	stallTimeout  time.Duration
	monitorPeriod time.Duration
	waitingAfter  time.Duration
	maxAttempts   int
	retryDelay    time.Duration
}

// New validates options and builds a Client. A missing API key is a
// configuration error surfaced here, before anything is persisted or sent.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("missing base url")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing api key")
	}

	c := &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(opts.APIKey),
		httpClient:    opts.HTTPClient,
		log:           opts.Logger,
		stallTimeout:  opts.StallTimeout,
		monitorPeriod: opts.MonitorPeriod,
		waitingAfter:  opts.WaitingAfter,
		maxAttempts:   opts.MaxAttempts,
		retryDelay:    opts.RetryDelay,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.stallTimeout <= 0 {
		c.stallTimeout = defaultStallTimeout
	}
	if c.monitorPeriod <= 0 {
		c.monitorPeriod = defaultMonitorPeriod
	}
	if c.waitingAfter <= 0 {
		c.waitingAfter = defaultWaitingAfter
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	return c, nil
}

// session is the per-call stream state shared between the reader loop and
// the liveness monitor.
type session struct {
	mu          sync.Mutex
	accumulated strings.Builder
	lastEventAt time.Time
	gotDelta    bool
	stalled     bool
	attempt     int
}

func (s *session) appendDelta(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accumulated.WriteString(text)
	s.lastEventAt = time.Now()
	s.gotDelta = true
	return s.accumulated.String()
}

func (s *session) snapshot() (gotDelta bool, sinceLast time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gotDelta {
		return false, 0
	}
	return true, time.Since(s.lastEventAt)
}

func (s *session) markStalled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = true
}

func (s *session) wasStalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

func (s *session) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String()
}

// StreamCompletion performs one logical completion with bounded retries.
// onDelta receives the full accumulated text after each fragment; onStatus
// receives liveness transitions. Both callbacks may be nil.
func (c *Client) StreamCompletion(ctx context.Context, req Request, onDelta func(string), onStatus func(Status)) (Result, error) {
	if c == nil {
		return Result{}, errors.New("nil client")
	}
	if strings.TrimSpace(req.Model) == "" {
		return Result{}, errors.New("missing model")
	}
	if len(req.Messages) == 0 {
		return Result{}, errors.New("empty message list")
	}

	emit := func(st Status) {
		if onStatus != nil {
			onStatus(st)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res, err := c.streamOnce(ctx, req, attempt, onDelta, emit)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		if ctx.Err() != nil {
			// Caller cancelled; do not burn remaining attempts.
			return Result{}, ctx.Err()
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			emit(StatusError)
			return Result{}, err
		}
		lastErr = err
		c.log.Warn("stream attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err)

		if attempt < c.maxAttempts {
			if sleepErr := sleepCtx(ctx, retryDelay(c.retryDelay, attempt)); sleepErr != nil {
				return Result{}, sleepErr
			}
		}
	}

	if errors.Is(lastErr, ErrStalled) {
		emit(StatusTimeout)
	} else {
		emit(StatusError)
	}
	return Result{}, fmt.Errorf("exhausted %d attempts: %w", c.maxAttempts, lastErr)
}

// streamOnce runs a single attempt: open the chunked request, feed body
// bytes through the line buffer, parse delta events, and let the monitor
// kill the attempt when the stream stalls.
func (c *Client) streamOnce(ctx context.Context, req Request, attempt int, onDelta func(string), emit func(Status)) (Result, error) {
	attemptCtx, cancel := context.WithCancel(ctx)

	sess := &session{attempt: attempt}
	c.log.Debug("opening stream", "attempt", sess.attempt, "model", req.Model)
	emit(StatusConnecting)

	monitorDone := make(chan struct{})
	go c.monitor(attemptCtx, sess, cancel, emit, monitorDone)
	defer func() { <-monitorDone }()
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"model":          req.Model,
		"messages":       req.Messages,
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if sess.wasStalled() {
			return Result{}, fmt.Errorf("no delta within %s: %w", c.stallTimeout, ErrStalled)
		}
		return Result{}, fmt.Errorf("transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var (
		buf        lineBuffer
		usage      Usage
		chunk      = make([]byte, 4096)
		terminated bool
	)
	for !terminated {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			for _, line := range buf.appendChunk(chunk[:n]) {
				ev := parseEventLine(line)
				switch ev.kind {
				case eventContentDelta:
					accumulated := sess.appendDelta(ev.text)
					if onDelta != nil {
						onDelta(accumulated)
					}
				case eventUsage:
					usage = ev.usage
				case eventDone:
					// Clean stream termination.
					terminated = true
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if sess.wasStalled() {
				return Result{}, fmt.Errorf("no delta within %s: %w", c.stallTimeout, ErrStalled)
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, fmt.Errorf("transport: %w", readErr)
		}
	}

	text := sess.text()
	if strings.TrimSpace(text) == "" {
		// HTTP success but no usable content; treated exactly like a stall.
		return Result{}, ErrEmptyCompletion
	}
	return Result{Text: text, Usage: usage}, nil
}

// monitor is the scheduled liveness wakeup: every monitorPeriod it grades
// the gap since the last parsed delta and aborts the attempt past the stall
// threshold. Chunked transports often never signal stalls via a close event,
// which is why this is a timer and not a stream-close hook.
func (c *Client) monitor(ctx context.Context, sess *session, cancel context.CancelFunc, emit func(Status), done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.monitorPeriod)
	defer ticker.Stop()

	started := time.Now()
	last := StatusConnecting
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gotDelta, gap := sess.snapshot()
			if !gotDelta {
				gap = time.Since(started)
			}
			if gap > c.stallTimeout {
				sess.markStalled()
				cancel()
				return
			}

			next := StatusStreaming
			switch {
			case !gotDelta:
				next = StatusConnecting
			case gap > c.waitingAfter:
				next = StatusWaiting
			}
			if next != last {
				last = next
				emit(next)
			}
		}
	}
}

// retryDelay is a short backoff with jitter, capped so a flaky endpoint
// cannot push waits past 30s.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	d += time.Duration(rand.Int63n(int64(base)/2 + 1))
	if d > defaultRetryDelayCap {
		d = defaultRetryDelayCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
