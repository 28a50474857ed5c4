// Package generator turns an unstructured prompt body into a candidate
// FormSpecification by calling the Gemini generateContent endpoint and
// parsing its response.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/config"
	"github.com/formloom/formloom/internal/spec"
)

// fallbackModels are tried in order when the configured model is unknown to
// the endpoint. The configured model always goes first.
var fallbackModels = []string{
	"gemini-2.0-flash-exp",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

const rateLimitBackoff = 2 * time.Second

// SpecGenerator is the capability the pipeline orchestrator consumes.
type SpecGenerator interface {
	Generate(ctx context.Context, promptBody string, defaultRequired bool, sink broadcast.Sink) (spec.FormSpecification, error)
}

// Generator is a resty client wrapper around the Gemini REST API.
type Generator struct {
	cfg    *config.GeminiEnvConfig
	client *resty.Client
}

// NewGenerator creates a Generator using the provided environment
// configuration.
func NewGenerator(cfg *config.GeminiEnvConfig, timeout time.Duration) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	client := resty.New().
		SetBaseURL(cfg.GeminiBaseURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(timeout)

	return &Generator{cfg: cfg, client: client}, nil
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends the wrapped prompt body to the completion endpoint and
// parses the response into a candidate specification. The candidate is NOT
// validated here; callers run it through spec.Validate before submission.
func (g *Generator) Generate(ctx context.Context, promptBody string, defaultRequired bool, sink broadcast.Sink) (spec.FormSpecification, error) {
	if sink == nil {
		sink = broadcast.NopSink{}
	}
	if strings.TrimSpace(g.cfg.APIKey()) == "" {
		return spec.FormSpecification{}, &AuthError{
			Hint: "set GEMINI_API_KEY or GOOGLE_API_KEY; keys are issued at https://aistudio.google.com/app/apikey",
			Err:  fmt.Errorf("no API key configured"),
		}
	}

	sink.Append(broadcast.SeverityInfo, "Analyzing input with %s (%d characters)...", g.cfg.GeminiModel, len(promptBody))

	raw, err := g.complete(ctx, buildPrompt(promptBody, defaultRequired))
	if err != nil {
		sink.Append(broadcast.SeverityError, "Model call failed: %v", err)
		return spec.FormSpecification{}, err
	}
	sink.Append(broadcast.SeverityInfo, "Model response received (%d characters), parsing...", len(raw))

	candidate, err := Parse(raw, defaultRequired)
	if err != nil {
		sink.Append(broadcast.SeverityError, "Could not parse model response")
		return spec.FormSpecification{}, err
	}

	sink.Append(broadcast.SeveritySuccess, "Form structure generated: %d question(s) in %d section(s)",
		candidate.QuestionCount(), len(candidate.Sections))
	return candidate, nil
}

// complete performs the generateContent call, trying fallback models when the
// configured one is unknown and retrying exactly once on a rate limit.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	models := append([]string{g.cfg.GeminiModel}, fallbackModels...)

	var lastErr error
	for i, model := range models {
		text, err := g.completeWithModel(ctx, model, prompt, true)
		if err == nil {
			if i > 0 {
				log.Warn().Str("model", model).Str("configured", g.cfg.GeminiModel).Msg("configured model unavailable, used fallback")
			}
			return text, nil
		}

		var nf *modelNotFoundError
		if !errors.As(err, &nf) {
			return "", err
		}
		log.Debug().Str("model", model).Msg("model not found, trying next fallback")
		lastErr = err
	}
	return "", fmt.Errorf("no usable model: %w", lastErr)
}

type modelNotFoundError struct{ model string }

func (e *modelNotFoundError) Error() string { return fmt.Sprintf("model %q not found", e.model) }

func (g *Generator) completeWithModel(ctx context.Context, model, prompt string, retryRateLimit bool) (string, error) {
	body := generateContentRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: 0.2, ResponseMIMEType: "application/json"},
	}

	var out generateContentResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey()).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", model))
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("generate-content request failed")
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp.IsError() {
		status := resp.StatusCode()
		detail := ""
		if out.Error != nil {
			detail = out.Error.Message
		}
		switch {
		case status == 401 || status == 403:
			log.Error().Int("status", status).Str("detail", detail).Msg("generate-content auth failure")
			return "", &AuthError{
				Hint: "verify the GEMINI_API_KEY value and that the Generative Language API is enabled for it",
				Err:  fmt.Errorf("status %d: %s", status, detail),
			}
		case status == 429:
			if retryRateLimit {
				log.Warn().Str("model", model).Msg("rate limited, retrying once")
				select {
				case <-time.After(rateLimitBackoff):
				case <-ctx.Done():
					return "", ctx.Err()
				}
				return g.completeWithModel(ctx, model, prompt, false)
			}
			return "", &RateLimitError{Err: fmt.Errorf("status 429: %s", detail)}
		case status == 404:
			return "", &modelNotFoundError{model: model}
		default:
			log.Error().Int("status", status).Str("body", resp.String()).Msg("generate-content non-2xx")
			return "", fmt.Errorf("generate-content status %d: %s", status, detail)
		}
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &ParseError{Excerpt: truncate(resp.String(), 1000), Err: fmt.Errorf("response contains no candidates")}
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
