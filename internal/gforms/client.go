// Package gforms is a client for the forms-hosting service (Google Forms v1
// wire protocol): form shell creation, ordered batch updates, and access-URL
// lookup. Transient failures are retried by the underlying retryable client;
// definitive rejections surface as *StatusError so the synthesizer can abort.
package gforms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

// EnvConfig holds the forms service target and credential. The OAuth access
// token is independent of the completion endpoint's API key.
type EnvConfig struct {
	FormsBaseURL string `env:"FORMS_BASE_URL, default=https://forms.googleapis.com"`
	DriveBaseURL string `env:"DRIVE_BASE_URL, default=https://www.googleapis.com"`
	AccessToken  string `env:"FORMS_ACCESS_TOKEN"`
}

// StatusError is a non-2xx response that survived retries. Transient()
// distinguishes provider hiccups from definitive rejections.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forms service returned status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying at a higher level.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client wraps the forms service REST API.
type Client struct {
	httpClient *retryablehttp.Client
	cfg        EnvConfig
}

// NewClient builds a Client from environment configuration.
func NewClient(ctx context.Context) (*Client, error) {
	var cfg EnvConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process forms environment: %w", err)
	}
	return NewClientWithConfig(cfg), nil
}

// NewClientWithConfig builds a Client from an explicit configuration.
func NewClientWithConfig(cfg EnvConfig) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	log.Debug().
		Str("base_url", cfg.FormsBaseURL).
		Int("retry_max", client.RetryMax).
		Msg("forms client initialized")

	return &Client{httpClient: client, cfg: cfg}
}

func (c *Client) do(ctx context.Context, method, url string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", url).Msg("forms request failed")
		return fmt.Errorf("forms request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		log.Error().Int("status", resp.StatusCode).Str("url", url).Str("body", truncate(string(respBody), 300)).Msg("forms non-2xx")
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 1000)}
	}

	if result != nil {
		if err := sonic.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// CreateForm creates the form shell with its title, then applies the
// description with an updateFormInfo batch. The shell must exist before any
// item operations; every later request addresses the returned form ID.
func (c *Client) CreateForm(ctx context.Context, title, description string) (string, error) {
	var created Form
	err := c.do(ctx, http.MethodPost, c.cfg.FormsBaseURL+"/v1/forms",
		createFormRequest{Info: Info{Title: title, DocumentTitle: title}}, &created)
	if err != nil {
		return "", fmt.Errorf("create form shell: %w", err)
	}
	if created.FormID == "" {
		return "", fmt.Errorf("create form shell: no form ID returned")
	}

	if description != "" {
		reqs := []Request{{
			UpdateFormInfo: &UpdateFormInfoRequest{
				Info:       Info{Description: description},
				UpdateMask: "description",
			},
		}}
		if err := c.BatchUpdate(ctx, created.FormID, reqs); err != nil {
			return "", fmt.Errorf("set form description: %w", err)
		}
	}

	log.Info().Str("form_id", created.FormID).Str("title", title).Msg("form shell created")
	return created.FormID, nil
}

// BatchUpdate applies one chunk of ordered operations to the form.
func (c *Client) BatchUpdate(ctx context.Context, formID string, reqs []Request) error {
	url := fmt.Sprintf("%s/v1/forms/%s:batchUpdate", c.cfg.FormsBaseURL, formID)
	return c.do(ctx, http.MethodPost, url, batchUpdateRequest{Requests: reqs}, nil)
}

// GetForm fetches the form, primarily for its responder URI.
func (c *Client) GetForm(ctx context.Context, formID string) (Form, error) {
	var f Form
	url := fmt.Sprintf("%s/v1/forms/%s", c.cfg.FormsBaseURL, formID)
	if err := c.do(ctx, http.MethodGet, url, nil, &f); err != nil {
		return Form{}, err
	}
	return f, nil
}

// ShareAnyoneWithLink grants link-holders read access via the Drive
// permissions API. Failures are reported but callers treat them as
// best-effort; the form itself is already intact.
func (c *Client) ShareAnyoneWithLink(ctx context.Context, formID string) error {
	url := fmt.Sprintf("%s/drive/v3/files/%s/permissions", c.cfg.DriveBaseURL, formID)
	body := map[string]string{"type": "anyone", "role": "reader"}
	return c.do(ctx, http.MethodPost, url, body, nil)
}

// ViewURL returns the responder-facing URL for a form.
func (c *Client) ViewURL(formID string) string {
	return fmt.Sprintf("https://docs.google.com/forms/d/%s/viewform", formID)
}

// EditURL returns the owner-facing edit URL for a form.
func (c *Client) EditURL(formID string) string {
	return fmt.Sprintf("https://docs.google.com/forms/d/%s/edit", formID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
