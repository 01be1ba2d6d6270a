package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"server/internal/domain"
)

// Options configures the HeyGen API client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is a thin HTTP client for the HeyGen v1/v2 APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.heygen.com"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
	}
}

// GenerateVideoRequest describes an avatar video generation job.
type GenerateVideoRequest struct {
	AvatarID        string  `json:"avatar_id"`
	VoiceID         string  `json:"voice_id"`
	InputText       string  `json:"input_text"`
	Dimension       string  `json:"dimension,omitempty"`
	CallbackID      string  `json:"callback_id,omitempty"`
	DurationSeconds float64 `json:"-"`
}

// TranslateVideoRequest describes a video translation job.
type TranslateVideoRequest struct {
	VideoURL       string `json:"video_url"`
	OutputLanguage string `json:"output_language"`
	Title          string `json:"title,omitempty"`
	CallbackID     string `json:"callback_id,omitempty"`
}

// PhotoAvatarRequest describes a photo avatar group creation job.
type PhotoAvatarRequest struct {
	Name       string   `json:"name"`
	ImageKeys  []string `json:"image_keys"`
	CallbackID string   `json:"callback_id,omitempty"`
}

// StatusResult is the normalized answer of a synchronous status poll.
type StatusResult struct {
	Status          string
	VideoURL        string
	Error           string
	DurationSeconds float64
	CallbackID      string
}

// GenerateAvatarVideo submits a video generation and returns the vendor video id.
func (c *Client) GenerateAvatarVideo(ctx context.Context, req GenerateVideoRequest) (string, error) {
	var resp struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v2/video/generate", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.VideoID == "" {
		return "", fmt.Errorf("heygen: empty video id in response: %w", domain.ErrProviderFailure)
	}
	return resp.Data.VideoID, nil
}

// TranslateVideo submits a translation and returns the vendor translate id.
func (c *Client) TranslateVideo(ctx context.Context, req TranslateVideoRequest) (string, error) {
	var resp struct {
		Data struct {
			VideoTranslateID string `json:"video_translate_id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v2/video_translate", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.VideoTranslateID == "" {
		return "", fmt.Errorf("heygen: empty translate id in response: %w", domain.ErrProviderFailure)
	}
	return resp.Data.VideoTranslateID, nil
}

// CreatePhotoAvatarGroup submits a photo avatar group job and returns the vendor job id.
func (c *Client) CreatePhotoAvatarGroup(ctx context.Context, req PhotoAvatarRequest) (string, error) {
	var resp struct {
		Data struct {
			JobID   string `json:"job_id"`
			GroupID string `json:"group_id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v2/photo_avatar/avatar_group/create", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.JobID != "" {
		return resp.Data.JobID, nil
	}
	if resp.Data.GroupID != "" {
		return resp.Data.GroupID, nil
	}
	return "", fmt.Errorf("heygen: empty job id in response: %w", domain.ErrProviderFailure)
}

// VideoStatus polls the status of a generated video.
func (c *Client) VideoStatus(ctx context.Context, videoID string) (StatusResult, error) {
	var resp struct {
		Data struct {
			Status     string  `json:"status"`
			VideoURL   string  `json:"video_url"`
			Duration   float64 `json:"duration"`
			CallbackID string  `json:"callback_id"`
			Error      *struct {
				Message string `json:"message"`
				Detail  string `json:"detail"`
			} `json:"error"`
		} `json:"data"`
	}
	endpoint := "/v1/video_status.get?video_id=" + url.QueryEscape(videoID)
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return StatusResult{}, err
	}
	out := StatusResult{
		Status:          resp.Data.Status,
		VideoURL:        resp.Data.VideoURL,
		DurationSeconds: resp.Data.Duration,
		CallbackID:      resp.Data.CallbackID,
	}
	if resp.Data.Error != nil {
		out.Error = strings.TrimSpace(resp.Data.Error.Message + " " + resp.Data.Error.Detail)
	}
	return out, nil
}

// TranslateStatus polls the status of a translation.
func (c *Client) TranslateStatus(ctx context.Context, translateID string) (StatusResult, error) {
	var resp struct {
		Data struct {
			Status   string `json:"status"`
			URL      string `json:"url"`
			Message  string `json:"message"`
			Duration float64 `json:"duration"`
		} `json:"data"`
	}
	endpoint := "/v2/video_translate/" + url.PathEscape(translateID)
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		Status:          resp.Data.Status,
		VideoURL:        resp.Data.URL,
		Error:           resp.Data.Message,
		DurationSeconds: resp.Data.Duration,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("heygen: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("heygen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("heygen: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("heygen: API key is missing")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("heygen: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("heygen: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heygen: %s %s: status %d: %s: %w",
			req.Method, req.URL.Path, resp.StatusCode, truncate(string(raw), 256), domain.ErrProviderFailure)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("heygen: decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
