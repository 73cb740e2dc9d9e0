// Package browser drives a headless Chrome over the DevTools protocol and
// exposes it as a document provider: navigate, query element snapshots, and
// advance infinite-scroll pages. The marketplace renders entirely
// client-side, so a plain HTTP fetch sees an empty shell; a real browser
// session is the only way to observe the listing tables.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

const (
	// handshakeTimeout bounds the DevTools websocket dial.
	handshakeTimeout = 15 * time.Second

	// callTimeout bounds a single protocol round trip.
	callTimeout = 30 * time.Second

	// readyPollInterval is how often Navigate re-checks document.readyState.
	readyPollInterval = 250 * time.Millisecond

	// settleDelay gives the page's scripts a beat to render after load or
	// after an advance before the DOM is queried.
	settleDelay = 1500 * time.Millisecond
)

// Session is one DevTools page session. It implements
// domain.DocumentProvider. Access is serialized internally, matching the
// provider contract: one navigation or query at a time.
type Session struct {
	devtoolsURL string
	logger      *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

var _ domain.DocumentProvider = (*Session)(nil)

// devtoolsTarget is the /json/new response carrying the page's debugger URL.
type devtoolsTarget struct {
	ID                   string `json:"id"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// NewSession creates a fresh page target on a running Chrome instance and
// attaches to it.
//
// devtoolsURL is the DevTools HTTP root, e.g. "http://127.0.0.1:9222".
func NewSession(ctx context.Context, devtoolsURL string, logger *slog.Logger) (*Session, error) {
	s := &Session{
		devtoolsURL: strings.TrimRight(devtoolsURL, "/"),
		logger:      logger.With(slog.String("component", "browser")),
	}

	target, err := s.createTarget(ctx)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target.WebSocketDebuggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: dial devtools %s: %w", target.WebSocketDebuggerURL, err)
	}
	s.conn = conn

	if _, err := s.call(ctx, "Page.enable", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("browser: enable page domain: %w", err)
	}
	if _, err := s.call(ctx, "Runtime.enable", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("browser: enable runtime domain: %w", err)
	}

	s.logger.Info("devtools session attached", slog.String("target", target.ID))
	return s, nil
}

// createTarget asks Chrome for a new blank page target. Newer Chrome versions
// require PUT for /json/new.
func (s *Session) createTarget(ctx context.Context) (*devtoolsTarget, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.devtoolsURL+"/json/new?about:blank", nil)
	if err != nil {
		return nil, fmt.Errorf("browser: create target request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser: %w: devtools endpoint %s: %v",
			domain.ErrResourceUnavailable, s.devtoolsURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("browser: %w: create target: HTTP %d",
			domain.ErrResourceUnavailable, resp.StatusCode)
	}

	var target devtoolsTarget
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return nil, fmt.Errorf("browser: decode target: %w", err)
	}
	if target.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("browser: target %s has no debugger URL", target.ID)
	}
	return &target, nil
}

// Navigate loads the URL and blocks until the document reports readyState
// "complete", then waits a settle delay for client-side rendering.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if _, err := s.call(ctx, "Page.navigate", map[string]any{"url": url}); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}

	for {
		state, err := s.evaluateString(ctx, "document.readyState")
		if err != nil {
			return fmt.Errorf("browser: poll readyState: %w", err)
		}
		if state == "complete" {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("browser: navigate %s: %w", url, ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}

	return sleepCtx(ctx, settleDelay)
}

// elementSnapshotJS serializes every element matching the selector to its
// visible text and attribute map. Anchor hrefs are taken from the href
// property, which the browser resolves to an absolute URL.
const elementSnapshotJS = `(() => {
	const out = [];
	for (const el of document.querySelectorAll(%q)) {
		const attrs = {};
		for (const a of el.attributes) attrs[a.name] = a.value;
		if (el.href) attrs["href"] = el.href;
		out.push({text: (el.innerText || "").trim(), attrs: attrs});
	}
	return JSON.stringify(out);
})()`

// QuerySelectorAll snapshots every element matching the CSS selector in the
// current document.
func (s *Session) QuerySelectorAll(ctx context.Context, selector string) ([]domain.Element, error) {
	raw, err := s.evaluateString(ctx, fmt.Sprintf(elementSnapshotJS, selector))
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}

	var snapshots []struct {
		Text  string            `json:"text"`
		Attrs map[string]string `json:"attrs"`
	}
	if err := json.Unmarshal([]byte(raw), &snapshots); err != nil {
		return nil, fmt.Errorf("browser: decode snapshots: %w", err)
	}

	elements := make([]domain.Element, 0, len(snapshots))
	for _, snap := range snapshots {
		elements = append(elements, domain.Element{Text: snap.Text, Attrs: snap.Attrs})
	}
	return elements, nil
}

// advanceJS scrolls to the bottom of the document and clicks a load-more
// button when one is present.
const advanceJS = `(() => {
	window.scrollTo(0, document.body.scrollHeight);
	const btn = [...document.querySelectorAll("button")]
		.find(b => /load more|show more/i.test(b.innerText));
	if (btn) btn.click();
	return "";
})()`

// Advance scrolls the current document and triggers any load-more control,
// then waits for the newly revealed content to settle.
func (s *Session) Advance(ctx context.Context) error {
	if _, err := s.evaluateString(ctx, advanceJS); err != nil {
		return fmt.Errorf("browser: advance: %w", err)
	}
	return sleepCtx(ctx, settleDelay)
}

// Close detaches the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// evaluateString runs a JS expression and returns its string result.
func (s *Session) evaluateString(ctx context.Context, expression string) (string, error) {
	result, err := s.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
	})
	if err != nil {
		return "", err
	}

	var eval struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &eval); err != nil {
		return "", fmt.Errorf("decode evaluate result: %w", err)
	}
	if eval.ExceptionDetails != nil {
		return "", fmt.Errorf("page exception: %s", eval.ExceptionDetails.Text)
	}

	var value string
	if len(eval.Result.Value) > 0 {
		if err := json.Unmarshal(eval.Result.Value, &value); err != nil {
			// Non-string result (e.g. readyState already a string wrapped
			// differently); surface the raw value.
			return string(eval.Result.Value), nil
		}
	}
	return value, nil
}

// cdpRequest and cdpResponse are the DevTools protocol frames.
type cdpRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"` // set on events
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call sends one protocol command and reads frames until its response
// arrives. Events interleaved on the connection are skipped; a lost
// connection surfaces as ErrResourceUnavailable so callers can abort the
// whole crawl rather than retry per collection.
func (s *Session) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, fmt.Errorf("%w: session closed", domain.ErrResourceUnavailable)
	}

	s.nextID++
	req := cdpRequest{ID: s.nextID, Method: method, Params: params}

	deadline := time.Now().Add(callTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", domain.ErrResourceUnavailable, method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.conn.SetReadDeadline(deadline)

		var resp cdpResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrResourceUnavailable, method, err)
		}
		if resp.Method != "" || resp.ID != req.ID {
			// Event or stale frame.
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("browser: %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
