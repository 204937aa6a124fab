package studio

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

	"genflow/internal/run"
)

const (
	apiPrefix          = "/api/v1"
	defaultHTTPTimeout = 10 * time.Minute
)

// Client wraps the generation service's pipeline API. Generation calls block
// until the server finishes the stage, so the default timeout is generous.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the studio client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the bearer token attached to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a client for the given service base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("studio client: base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("studio client: parse base url: %w", err)
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// GenerateScript starts a run and returns the generated script once the
// server's script stage completes.
func (c *Client) GenerateScript(ctx context.Context, req ScriptRequest) (ScriptResponse, error) {
	var resp ScriptResponse
	if strings.TrimSpace(req.ProductName) == "" {
		return resp, errors.New("generate script: product name required")
	}
	if err := c.postJSON(ctx, "/pipeline/script", req, &resp, "generate script"); err != nil {
		return ScriptResponse{}, err
	}
	return resp, nil
}

// UpdateScript replaces the stored script with the user's edits.
func (c *Client) UpdateScript(ctx context.Context, runID string, script run.Script) (ScriptResponse, error) {
	var resp ScriptResponse
	body := struct {
		RunID  string     `json:"run_id"`
		Script run.Script `json:"script"`
	}{RunID: runID, Script: script}
	if err := c.postJSON(ctx, "/pipeline/script/update", body, &resp, "update script"); err != nil {
		return ScriptResponse{}, err
	}
	return resp, nil
}

// GenerateAvatars renders presenter candidates for the script's profile.
func (c *Client) GenerateAvatars(ctx context.Context, req AvatarRequest) (AvatarResponse, error) {
	var resp AvatarResponse
	if err := c.postJSON(ctx, "/pipeline/avatar", req, &resp, "generate avatars"); err != nil {
		return AvatarResponse{}, err
	}
	return resp, nil
}

// SelectAvatar confirms an avatar variant choice server-side.
func (c *Client) SelectAvatar(ctx context.Context, runID string, variantIndex int) (AvatarSelection, error) {
	var resp AvatarSelection
	body := struct {
		RunID        string `json:"run_id"`
		VariantIndex int    `json:"variant_index"`
	}{RunID: runID, VariantIndex: variantIndex}
	if err := c.postJSON(ctx, "/pipeline/avatar/select", body, &resp, "select avatar"); err != nil {
		return AvatarSelection{}, err
	}
	return resp, nil
}

// GenerateStoryboard renders and QC-checks one frame per scene, returning
// the full result set.
func (c *Client) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (StoryboardResponse, error) {
	var resp StoryboardResponse
	if err := c.postJSON(ctx, "/pipeline/storyboard", req, &resp, "generate storyboard"); err != nil {
		return StoryboardResponse{}, err
	}
	return resp, nil
}

// RegenStoryboardScene regenerates a single storyboard frame and returns the
// server's best attempt.
func (c *Client) RegenStoryboardScene(ctx context.Context, req StoryboardRegenRequest) (run.StoryboardResult, error) {
	var resp run.StoryboardResult
	if err := c.postJSON(ctx, "/pipeline/storyboard/regen-scene", req, &resp, "regen storyboard scene"); err != nil {
		return run.StoryboardResult{}, err
	}
	return resp, nil
}

// GenerateVideos renders clip variants for every storyboard scene.
func (c *Client) GenerateVideos(ctx context.Context, req VideoRequest) (VideoResponse, error) {
	var resp VideoResponse
	if err := c.postJSON(ctx, "/pipeline/video", req, &resp, "generate videos"); err != nil {
		return VideoResponse{}, err
	}
	return resp, nil
}

// RegenVideoScene regenerates the clips for a single scene.
func (c *Client) RegenVideoScene(ctx context.Context, req VideoRegenRequest) (VideoRegenResponse, error) {
	var resp VideoRegenResponse
	if err := c.postJSON(ctx, "/pipeline/video/regen-scene", req, &resp, "regen video scene"); err != nil {
		return VideoRegenResponse{}, err
	}
	return resp, nil
}

// SelectVideoVariant confirms a per-scene clip choice server-side.
func (c *Client) SelectVideoVariant(ctx context.Context, runID string, sceneNumber, variantIndex int) (VideoSelection, error) {
	var resp VideoSelection
	body := struct {
		RunID        string `json:"run_id"`
		SceneNumber  int    `json:"scene_number"`
		VariantIndex int    `json:"variant_index"`
	}{RunID: runID, SceneNumber: sceneNumber, VariantIndex: variantIndex}
	if err := c.postJSON(ctx, "/pipeline/video/select", body, &resp, "select video variant"); err != nil {
		return VideoSelection{}, err
	}
	return resp, nil
}

// Stitch assembles the selected clips into the final video using the given
// per-boundary transitions.
func (c *Client) Stitch(ctx context.Context, runID string, transitions []run.TransitionCue) (StitchResponse, error) {
	var resp StitchResponse
	body := struct {
		RunID       string              `json:"run_id"`
		Transitions []run.TransitionCue `json:"transitions,omitempty"`
	}{RunID: runID, Transitions: transitions}
	if err := c.postJSON(ctx, "/pipeline/stitch", body, &resp, "stitch"); err != nil {
		return StitchResponse{}, err
	}
	return resp, nil
}

// SubmitReview records the human review decision for a completed run.
func (c *Client) SubmitReview(ctx context.Context, runID string, decision run.ReviewDecision, notes string) error {
	var resp struct {
		Status string `json:"status"`
	}
	body := struct {
		Status run.ReviewDecision `json:"status"`
		Notes  string             `json:"notes,omitempty"`
	}{Status: decision, Notes: notes}
	path := fmt.Sprintf("/review/%s/decision", url.PathEscape(runID))
	return c.postJSON(ctx, path, body, &resp, "submit review")
}

// Job fetches the server's stored view of a run.
func (c *Client) Job(ctx context.Context, runID string) (Job, error) {
	var job Job
	path := fmt.Sprintf("/jobs/%s", url.PathEscape(runID))
	if err := c.getJSON(ctx, path, &job, "get job"); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Jobs lists all runs the server knows about, newest first.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.getJSON(ctx, "/jobs", &jobs, "list jobs"); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any, op string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("%s: request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, op)
}

func (c *Client) getJSON(ctx context.Context, path string, out any, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+path, nil)
	if err != nil {
		return fmt.Errorf("%s: request: %w", op, err)
	}
	return c.do(req, out, op)
}

func (c *Client) do(req *http.Request, out any, op string) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s: http %d: %s", op, resp.StatusCode, serverErrorDetail(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// serverErrorDetail extracts the service's error detail field when present,
// falling back to the raw body.
func serverErrorDetail(payload []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(payload))
}
