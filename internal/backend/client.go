// Package backend is the HTTP client for the detection backend.
//
//	c := backend.NewClient("http://localhost:5000", 5*time.Second)
//	if err := c.Probe(ctx); err != nil {
//		// unreachable
//	}
//	records, err := c.History(ctx)
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultProbeTimeout bounds a reachability probe.
const DefaultProbeTimeout = 5 * time.Second

// Action is one of the backend's control endpoints.
type Action string

const (
	ActionWebcam         Action = "webcam"
	ActionPrerecorded    Action = "prerecorded"
	ActionStartDetection Action = "start"
	ActionStopDetection  Action = "stop"
)

// Actions lists every control action in display order.
var Actions = []Action{ActionWebcam, ActionPrerecorded, ActionStartDetection, ActionStopDetection}

// Path returns the endpoint the action is posted to.
func (a Action) Path() string {
	switch a {
	case ActionWebcam:
		return "/toggle_video_webcam"
	case ActionPrerecorded:
		return "/toggle_video_prerecorded"
	case ActionStartDetection:
		return "/toggle_detection_start"
	case ActionStopDetection:
		return "/toggle_detection_stop"
	}
	return ""
}

// ParseAction accepts an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if a.Path() == "" {
		return "", fmt.Errorf("unknown action %q (want webcam, prerecorded, start or stop)", s)
	}
	return a, nil
}

// Record is one entry of the backend's authoritative detection history.
type Record struct {
	SourceID        string    `json:"sourceId"`
	Message         string    `json:"message"`
	Person          bool      `json:"person"`
	Knife           bool      `json:"knife"`
	Gun             bool      `json:"gun"`
	MultiplePersons bool      `json:"multiplePersons"`
	Timestamp       Timestamp `json:"timestamp"`
}

// FilterRecords keeps the records flagging kind (person, knife, gun or
// multiple_persons). An empty kind keeps everything.
func FilterRecords(records []Record, kind string) ([]Record, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return records, nil
	}
	pred, ok := recordFilters[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

var recordFilters = map[string]func(Record) bool{
	"person":           func(r Record) bool { return r.Person },
	"knife":            func(r Record) bool { return r.Knife },
	"gun":              func(r Record) bool { return r.Gun },
	"multiple_persons": func(r Record) bool { return r.MultiplePersons },
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client talks to the detection backend.
type Client struct {
	baseURL      string
	probeTimeout time.Duration
	httpClient   *http.Client
}

// NewClient creates a client for the backend at baseURL. A zero probeTimeout
// means DefaultProbeTimeout.
func NewClient(baseURL string, probeTimeout time.Duration) *Client {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		probeTimeout: probeTimeout,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Probe checks reachability with GET /. Any 2xx answer within the probe
// timeout counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/")
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// History fetches GET /get_history.
func (c *Client) History(ctx context.Context) ([]Record, error) {
	resp, err := c.do(ctx, http.MethodGet, "/get_history")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return records, nil
}

// Toggle posts a control action. The backend's JSON answer is returned as-is
// and may be nil when the body is not JSON.
func (c *Client) Toggle(ctx context.Context, a Action) (map[string]any, error) {
	path := a.Path()
	if path == "" {
		return nil, fmt.Errorf("unknown action %q", a)
	}
	resp, err := c.do(ctx, http.MethodPost, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out, nil
}

// VideoFeedURL returns the backend URL of the MJPEG stream for id.
func (c *Client) VideoFeedURL(id string) string {
	return c.baseURL + "/video_feed/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
