// Package creator wires the generation pipeline together: input
// normalization, AI specification generation, validation/repair, and the
// final batch submission. Every stage fails closed; no stage runs past a
// failure of an earlier one.
package creator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/docfetch"
	"github.com/formloom/formloom/internal/extract"
	"github.com/formloom/formloom/internal/generator"
	"github.com/formloom/formloom/internal/scriptparse"
	"github.com/formloom/formloom/internal/spec"
	"github.com/formloom/formloom/internal/synthesizer"
)

// Creator owns one end of every session: it opens the log, runs the
// pipeline synchronously, and appends the terminal entry. The specification
// it returns is owned by the caller until it comes back via Create.
type Creator struct {
	gen   generator.SpecGenerator
	docs  docfetch.Fetcher
	synth *synthesizer.Synthesizer
	logs  *broadcast.Registry
}

func New(gen generator.SpecGenerator, docs docfetch.Fetcher, synth *synthesizer.Synthesizer, logs *broadcast.Registry) *Creator {
	return &Creator{gen: gen, docs: docs, synth: synth, logs: logs}
}

// GenerationResult is the outcome of the generate half of the pipeline. The
// caller reviews and edits Spec (typically the required flags), then submits
// it unchanged in shape via Create.
type GenerationResult struct {
	SessionID string                 `json:"session_id"`
	Spec      spec.FormSpecification `json:"form_specification"`
	Repairs   []spec.Repair          `json:"repairs,omitempty"`
}

// CreateResult is the outcome of the submit half.
type CreateResult struct {
	SessionID string `json:"session_id"`
	synthesizer.Result
}

// FromText generates a specification from a free-text description.
func (c *Creator) FromText(ctx context.Context, text string, defaultRequired bool) (*GenerationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text input is required")
	}
	id := c.logs.Open()
	sink := c.logs.Sink(id)
	sink.Append(broadcast.SeverityInfo, "Starting form generation from text input...")
	return c.generate(ctx, id, sink, text, defaultRequired)
}

// FromFile generates a specification from an uploaded document.
func (c *Creator) FromFile(ctx context.Context, filename string, data []byte, defaultRequired bool) (*GenerationResult, error) {
	id := c.logs.Open()
	sink := c.logs.Sink(id)
	sink.Append(broadcast.SeverityInfo, "Reading file %s...", filename)

	text, err := extract.Text(data, filename)
	if err != nil {
		return nil, c.fail(id, fmt.Errorf("extract %s: %w", filename, err))
	}
	sink.Append(broadcast.SeverityInfo, "Extracted %d characters from %s", len(text), filename)
	return c.generate(ctx, id, sink, text, defaultRequired)
}

// FromDoc generates a specification from a Google Docs link or document ID.
func (c *Creator) FromDoc(ctx context.Context, urlOrID string, defaultRequired bool) (*GenerationResult, error) {
	id := c.logs.Open()
	sink := c.logs.Sink(id)
	sink.Append(broadcast.SeverityInfo, "Fetching document %s...", urlOrID)

	text, err := c.docs.FetchText(ctx, urlOrID)
	if err != nil {
		return nil, c.fail(id, err)
	}
	sink.Append(broadcast.SeverityInfo, "Fetched %d characters", len(text))
	return c.generate(ctx, id, sink, text, defaultRequired)
}

// FromScript builds a specification directly from an Apps Script or JSON
// payload. No AI call is involved; the script is the structure.
func (c *Creator) FromScript(ctx context.Context, code string, defaultRequired bool) (*GenerationResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("script code is required")
	}
	id := c.logs.Open()
	sink := c.logs.Sink(id)
	sink.Append(broadcast.SeverityInfo, "Parsing script...")

	candidate, err := scriptparse.Parse(code, defaultRequired)
	if err != nil {
		return nil, c.fail(id, err)
	}
	sink.Append(broadcast.SeveritySuccess, "Script parsed: %d question(s)", candidate.QuestionCount())
	return c.finishGeneration(id, sink, candidate)
}

func (c *Creator) generate(ctx context.Context, id string, sink broadcast.Sink, text string, defaultRequired bool) (*GenerationResult, error) {
	candidate, err := c.gen.Generate(ctx, text, defaultRequired, sink)
	if err != nil {
		return nil, c.fail(id, err)
	}
	return c.finishGeneration(id, sink, candidate)
}

func (c *Creator) finishGeneration(id string, sink broadcast.Sink, candidate spec.FormSpecification) (*GenerationResult, error) {
	validated, report, err := spec.Validate(candidate)
	if err != nil {
		return nil, c.fail(id, err)
	}
	for _, rep := range report.Repairs {
		sink.Append(broadcast.SeverityWarning, "Repair: %s", rep.Message)
	}

	c.logs.Close(id, broadcast.SeveritySuccess,
		"Specification ready: %q with %d question(s); review and submit to create the form",
		validated.Title, validated.QuestionCount())
	log.Info().Str("session_id", id).Str("title", validated.Title).Int("questions", validated.QuestionCount()).Msg("specification generated")

	return &GenerationResult{SessionID: id, Spec: validated, Repairs: report.Repairs}, nil
}

// Create validates the (possibly caller-edited) specification and submits it
// to the forms service. Validation is idempotent, so re-running it on an
// unedited specification changes nothing; it only guards against broken
// edits.
func (c *Creator) Create(ctx context.Context, f spec.FormSpecification) (*CreateResult, error) {
	id := c.logs.Open()
	sink := c.logs.Sink(id)

	validated, _, err := spec.Validate(f)
	if err != nil {
		return nil, c.fail(id, err)
	}

	res, err := c.synth.Submit(ctx, validated, sink)
	if err != nil {
		return nil, c.fail(id, err)
	}

	c.logs.Close(id, broadcast.SeveritySuccess, "Done")
	return &CreateResult{SessionID: id, Result: res}, nil
}

// fail writes the terminal error entry and passes the error through
// unwrapped so callers can still classify it.
func (c *Creator) fail(id string, err error) error {
	c.logs.Close(id, broadcast.SeverityError, "Failed: %v", err)
	log.Error().Err(err).Str("session_id", id).Msg("pipeline failed")
	return err
}
