// Package docfetch fetches plain text from Google Docs documents given a
// URL or bare document ID.
package docfetch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

// EnvConfig holds the Docs API target and credential. The token is the same
// OAuth credential the forms client uses.
type EnvConfig struct {
	DocsBaseURL string `env:"DOCS_BASE_URL, default=https://docs.googleapis.com"`
	AccessToken string `env:"FORMS_ACCESS_TOKEN"`
}

// Fetcher is the capability the pipeline orchestrator consumes.
type Fetcher interface {
	FetchText(ctx context.Context, urlOrID string) (string, error)
}

// Client wraps the Google Docs documents.get endpoint.
type Client struct {
	client *resty.Client
	cfg    EnvConfig
}

func NewClient(ctx context.Context, timeout time.Duration) (*Client, error) {
	var cfg EnvConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process docs environment: %w", err)
	}
	return NewClientWithConfig(cfg, timeout), nil
}

func NewClientWithConfig(cfg EnvConfig, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(cfg.DocsBaseURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(timeout)
	return &Client{client: client, cfg: cfg}
}

var docIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
}

var bareIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ExtractDocID pulls the document ID out of the common Docs URL shapes, or
// accepts a bare ID unchanged.
func ExtractDocID(urlOrID string) (string, error) {
	s := strings.TrimSpace(urlOrID)
	for _, re := range docIDPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], nil
		}
	}
	if bareIDRe.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("could not extract document ID from %q", urlOrID)
}

// document mirrors the part of the documents.get response that carries text.
type document struct {
	Body struct {
		Content []struct {
			Paragraph *struct {
				Elements []struct {
					TextRun *struct {
						Content string `json:"content"`
					} `json:"textRun"`
				} `json:"elements"`
			} `json:"paragraph"`
		} `json:"content"`
	} `json:"body"`
}

// FetchText retrieves a document and concatenates its paragraph text runs.
func (c *Client) FetchText(ctx context.Context, urlOrID string) (string, error) {
	docID, err := ExtractDocID(urlOrID)
	if err != nil {
		return "", err
	}

	var doc document
	req := c.client.R().
		SetContext(ctx).
		SetResult(&doc)
	if c.cfg.AccessToken != "" {
		req.SetHeader("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	resp, err := req.Get("/v1/documents/" + docID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("documents.get request failed")
		return "", fmt.Errorf("fetch document: %w", err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("doc_id", docID).Msg("documents.get non-2xx")
		if resp.StatusCode() == 403 || resp.StatusCode() == 404 {
			return "", fmt.Errorf("document %s is not accessible: ensure it exists and is shared with the service credential (status %d)", docID, resp.StatusCode())
		}
		return "", fmt.Errorf("documents.get status %d: %s", resp.StatusCode(), resp.String())
	}

	var sb strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				sb.WriteString(pe.TextRun.Content)
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("document %s appears to be empty", docID)
	}
	log.Info().Str("doc_id", docID).Int("chars", len(text)).Msg("document text fetched")
	return text, nil
}
