package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// LeaseResponse — текущий lease из API.
type LeaseResponse struct {
	Key        string `json:"key"`
	OwnerToken string `json:"owner_token"`
	ExpiresAt  string `json:"expires_at"`
}

// StatusResponse — состояние экземпляра scheduler'а.
type StatusResponse struct {
	InstanceID    string         `json:"instance_id"`
	State         string         `json:"state"`
	IsLeader      bool           `json:"is_leader"`
	Leader        *LeaseResponse `json:"leader,omitempty"`
	LeaderError   string         `json:"leader_error,omitempty"`
	LeaseDeadline string         `json:"lease_deadline,omitempty"`
	Ticks         uint64         `json:"ticks"`
	LastTickAt    string         `json:"last_tick_at,omitempty"`
	Dispatched    uint64         `json:"dispatched"`
	Failures      uint64         `json:"failures"`
	Jobs          int            `json:"jobs"`
}

// JobResponse — job из API.
type JobResponse struct {
	Name           string          `json:"name"`
	Cadence        string          `json:"cadence"`
	Timezone       string          `json:"timezone,omitempty"`
	Topic          string          `json:"topic,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Enabled        bool            `json:"enabled"`
	NextDueAt      string          `json:"next_due_at"`
	LastRunAt      string          `json:"last_run_at,omitempty"`
	LastAttemptAt  string          `json:"last_attempt_at,omitempty"`
	LastDispatchID string          `json:"last_dispatch_id,omitempty"`
	LastOutcome    string          `json:"last_outcome,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	DisabledReason string          `json:"disabled_reason,omitempty"`
}

// HealthResponse — результат /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrAPI — API вернул ошибку (HTTP >= 400).
var ErrAPI = errors.New("api error")

// --- Client ---

// Client — HTTP-клиент для административного API Metronome.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Status возвращает состояние экземпляра.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var st StatusResponse
	err := c.get(ctx, "/api/v1/status", &st)
	return &st, err
}

// ListJobs возвращает job. enabled != nil — фильтр по флагу.
func (c *Client) ListJobs(ctx context.Context, enabled *bool) ([]JobResponse, error) {
	params := url.Values{}
	if enabled != nil {
		params.Set("enabled", strconv.FormatBool(*enabled))
	}

	var jobs []JobResponse
	err := c.list(ctx, "/api/v1/jobs", params, &jobs)
	return jobs, err
}

// GetJob возвращает job по имени.
func (c *Client) GetJob(ctx context.Context, name string) (*JobResponse, error) {
	var job JobResponse
	err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(name), &job)
	return &job, err
}

// Health возвращает результат /healthz. 503 не считается ошибкой.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, errors.Wrapf(err, "decode health response (HTTP %d)", resp.StatusCode)
	}
	return &h, nil
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "request %s", c.baseURL),
			"is metronome-scheduler running? set --api-url",
		)
	}
	return resp, nil
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return errors.Mark(errors.Newf("HTTP %d", resp.StatusCode), ErrAPI)
	}

	return errors.Mark(errors.Newf("%s: %s", er.Error.Code, er.Error.Message), ErrAPI)
}
