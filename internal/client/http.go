package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shone114/alternate-history/internal/model"
	althistsync "github.com/shone114/alternate-history/internal/sync"
)

// DefaultTimeout bounds read requests. Admin triggers use the context
// deadline only, since a day-cycle can run for several minutes.
const DefaultTimeout = 30 * time.Second

// HTTPClient implements Client using the althist HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, it is sent as a
// Bearer token on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Read API ---

func (c *HTTPClient) Universe(ctx context.Context) (*model.Universe, error) {
	var u model.Universe
	if err := c.get(ctx, "/v1/universe", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) Timeline(ctx context.Context, req *ListRequest) ([]*model.TimelineEvent, error) {
	var out []*model.TimelineEvent
	if err := c.get(ctx, listPath("/v1/timeline", req), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) LatestEvent(ctx context.Context) (*model.TimelineEvent, error) {
	var e model.TimelineEvent
	if err := c.get(ctx, "/v1/timeline/latest", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) Event(ctx context.Context, day int) (*model.TimelineEvent, error) {
	var e model.TimelineEvent
	if err := c.get(ctx, dayPath("/v1/timeline", day), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) Subtopics(ctx context.Context, req *ListRequest) ([]*model.Subtopic, error) {
	var out []*model.Subtopic
	if err := c.get(ctx, listPath("/v1/subtopics", req), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Subtopic(ctx context.Context, day int) (*model.Subtopic, error) {
	var s model.Subtopic
	if err := c.get(ctx, dayPath("/v1/subtopics", day), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Proposals(ctx context.Context, req *ListRequest) ([]*model.Proposal, error) {
	var out []*model.Proposal
	if err := c.get(ctx, listPath("/v1/proposals", req), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DayProposals(ctx context.Context, day int) ([]*model.Proposal, error) {
	var out []*model.Proposal
	if err := c.get(ctx, dayPath("/v1/proposals", day), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Judgments(ctx context.Context, req *ListRequest) ([]*model.Judgment, error) {
	var out []*model.Judgment
	if err := c.get(ctx, listPath("/v1/judgments", req), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Judgment(ctx context.Context, day int) (*model.Judgment, error) {
	var j model.Judgment
	if err := c.get(ctx, dayPath("/v1/judgments", day), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Admin ---

func (c *HTTPClient) RunDay(ctx context.Context) (*RunDayResponse, error) {
	var resp RunDayResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/admin/days", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Reset(ctx context.Context) (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/admin/reset", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Export(ctx context.Context) (*althistsync.Report, error) {
	var rep althistsync.Report
	if err := c.doJSON(ctx, http.MethodPost, "/v1/admin/export", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/v1/health", &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func listPath(base string, req *ListRequest) string {
	if req == nil {
		return base
	}
	q := url.Values{}
	if req.Skip > 0 {
		q.Set("skip", strconv.Itoa(req.Skip))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Order != "" {
		q.Set("order", string(req.Order))
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

func dayPath(base string, day int) string {
	return base + "/" + strconv.Itoa(day)
}

// APIError represents an error response from the server. Failed day-cycles
// also carry the day, state and step they failed at.
type APIError struct {
	StatusCode int
	Message    string
	DayIndex   int
	State      string
	Step       string
}

func (e *APIError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("HTTP %d: %s (day %d, step %s)", e.StatusCode, e.Message, e.DayIndex, e.Step)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// get performs a bounded GET request.
func (c *HTTPClient) get(ctx context.Context, path string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error    string `json:"error"`
			DayIndex int    `json:"day_index"`
			State    string `json:"state"`
			Step     string `json:"step"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    errResp.Error,
				DayIndex:   errResp.DayIndex,
				State:      errResp.State,
				Step:       errResp.Step,
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
