// Package synthesizer flattens a validated specification into ordered
// createItem operations and drives their chunked, strictly sequential
// submission to the forms service.
package synthesizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/gforms"
	"github.com/formloom/formloom/internal/spec"
)

// DefaultChunkSize bounds the number of operations per batchUpdate request,
// keeping payloads under the provider's documented request limits.
const DefaultChunkSize = 20

// FormsAPI is the slice of the forms client the synthesizer consumes.
type FormsAPI interface {
	CreateForm(ctx context.Context, title, description string) (string, error)
	BatchUpdate(ctx context.Context, formID string, reqs []gforms.Request) error
	GetForm(ctx context.Context, formID string) (gforms.Form, error)
	ShareAnyoneWithLink(ctx context.Context, formID string) error
	ViewURL(formID string) string
	EditURL(formID string) string
}

// Result carries the created form's identifiers.
type Result struct {
	FormID  string `json:"form_id"`
	ViewURL string `json:"view_url"`
	EditURL string `json:"edit_url"`
	Applied int    `json:"applied_operations"`
}

// SubmissionError means the service rejected a chunk before any operation
// was applied. Chunk and FirstOp locate the failure (1-based chunk, 0-based
// global operation index).
type SubmissionError struct {
	Chunk   int
	Chunks  int
	FirstOp int
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("batch submission failed at chunk %d/%d (operation %d): %v", e.Chunk, e.Chunks, e.FirstOp, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PartialSubmissionError means some chunks were applied before a later chunk
// failed: the remote form exists but is incomplete, which the caller must be
// told explicitly rather than being shown a partial form as complete.
type PartialSubmissionError struct {
	FormID  string
	Applied int
	Chunk   int
	Chunks  int
	Err     error
}

func (e *PartialSubmissionError) Error() string {
	return fmt.Sprintf("form %s partially populated: %d operation(s) applied before chunk %d/%d failed: %v",
		e.FormID, e.Applied, e.Chunk, e.Chunks, e.Err)
}

func (e *PartialSubmissionError) Unwrap() error { return e.Err }

// Synthesizer materializes validated specifications on the forms service.
type Synthesizer struct {
	api       FormsAPI
	chunkSize int
}

type Option func(*Synthesizer)

// WithChunkSize overrides the maximum operations per batch.
func WithChunkSize(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func New(api FormsAPI, opts ...Option) *Synthesizer {
	s := &Synthesizer{api: api, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Flatten walks the section -> group -> question hierarchy in document order
// and emits createItem operations with sequential insertion indices. The
// operation order becomes the visual order of the rendered form; identical
// input always yields identical output.
//
// Sections with a title or description become page breaks, titled groups
// become display-only text items, so the hierarchy survives rendering.
func Flatten(f spec.FormSpecification) []gforms.Request {
	var reqs []gforms.Request
	index := 0

	push := func(item gforms.Item) {
		reqs = append(reqs, gforms.Request{
			CreateItem: &gforms.CreateItemRequest{
				Item:     item,
				Location: gforms.Location{Index: index},
			},
		})
		index++
	}

	for _, sec := range f.Sections {
		if sec.Title != "" || sec.Description != "" {
			push(gforms.Item{
				Title:         sec.Title,
				Description:   sec.Description,
				PageBreakItem: &gforms.PageBreakItem{},
			})
		}
		for _, grp := range sec.QuestionGroups {
			if grp.Title != "" || grp.Description != "" {
				push(gforms.Item{
					Title:       grp.Title,
					Description: grp.Description,
					TextItem:    &gforms.TextItem{},
				})
			}
			for _, q := range grp.Questions {
				push(questionItem(q))
			}
		}
	}
	return reqs
}

// questionItem maps one normalized question onto the provider's item schema.
// The validator guarantees the preconditions here (known type, options
// present for the choice family, sane scale bounds); no re-checking happens.
func questionItem(q spec.Question) gforms.Item {
	item := gforms.Item{Title: q.Text}
	question := gforms.Question{Required: q.Required}

	switch q.Type {
	case spec.TypeShortText:
		question.TextQuestion = &gforms.TextQuestion{}
	case spec.TypeParagraph:
		question.TextQuestion = &gforms.TextQuestion{Paragraph: true}
	case spec.TypeMultipleChoice, spec.TypeCheckbox, spec.TypeDropdown:
		choiceType := gforms.ChoiceTypeRadio
		if q.Type == spec.TypeCheckbox {
			choiceType = gforms.ChoiceTypeCheckbox
		} else if q.Type == spec.TypeDropdown {
			choiceType = gforms.ChoiceTypeDropDown
		}
		options := make([]gforms.Option, len(q.Options))
		for i, o := range q.Options {
			options[i] = gforms.Option{Value: o}
		}
		question.ChoiceQuestion = &gforms.ChoiceQuestion{Type: choiceType, Options: options}
	case spec.TypeLinearScale:
		question.ScaleQuestion = &gforms.ScaleQuestion{
			Low:       q.ScaleMin,
			High:      q.ScaleMax,
			LowLabel:  q.ScaleMinLabel,
			HighLabel: q.ScaleMaxLabel,
		}
	case spec.TypeDate:
		question.DateQuestion = &gforms.DateQuestion{IncludeYear: true}
	case spec.TypeTime:
		question.TimeQuestion = &gforms.TimeQuestion{}
	}

	item.QuestionItem = &gforms.QuestionItem{Question: question}
	return item
}

// Chunk partitions operations into runs of at most size, never splitting an
// operation.
func Chunk(reqs []gforms.Request, size int) [][]gforms.Request {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]gforms.Request
	for start := 0; start < len(reqs); start += size {
		end := start + size
		if end > len(reqs) {
			end = len(reqs)
		}
		chunks = append(chunks, reqs[start:end])
	}
	return chunks
}

// Submit creates the form shell, then applies the flattened operations in
// strictly sequential chunks. Insertion indices are relative to the document
// revision, so chunk N must land before chunk N+1; there is no concurrency
// here on purpose.
func (s *Synthesizer) Submit(ctx context.Context, f spec.FormSpecification, sink broadcast.Sink) (Result, error) {
	if sink == nil {
		sink = broadcast.NopSink{}
	}

	sink.Append(broadcast.SeverityInfo, "Creating form %q...", f.Title)
	formID, err := s.api.CreateForm(ctx, f.Title, f.Description)
	if err != nil {
		sink.Append(broadcast.SeverityError, "Form creation failed: %v", err)
		return Result{}, fmt.Errorf("create form: %w", err)
	}

	reqs := Flatten(f)
	chunks := Chunk(reqs, s.chunkSize)
	sink.Append(broadcast.SeverityInfo, "Adding %d item(s) in %d batch(es)...", len(reqs), len(chunks))

	applied := 0
	for i, chunk := range chunks {
		if err := s.api.BatchUpdate(ctx, formID, chunk); err != nil {
			return Result{}, s.submissionFailure(sink, formID, err, applied, i, len(chunks))
		}
		applied += len(chunk)
		sink.Append(broadcast.SeverityInfo, "Batch %d of %d submitted (%d/%d items)", i+1, len(chunks), applied, len(reqs))
	}

	if err := s.api.ShareAnyoneWithLink(ctx, formID); err != nil {
		// Link sharing is best effort; the form is complete either way.
		log.Warn().Err(err).Str("form_id", formID).Msg("could not set link-sharing permission")
		sink.Append(broadcast.SeverityWarning, "Could not enable link sharing; adjust permissions manually")
	}

	res := Result{FormID: formID, Applied: applied}
	form, err := s.api.GetForm(ctx, formID)
	if err != nil {
		log.Warn().Err(err).Str("form_id", formID).Msg("could not fetch responder URI, using canonical URLs")
	}
	if form.ResponderURI != "" {
		res.ViewURL = form.ResponderURI
	} else {
		res.ViewURL = s.api.ViewURL(formID)
	}
	res.EditURL = s.api.EditURL(formID)

	sink.Append(broadcast.SeveritySuccess, "Form created: %s", res.ViewURL)
	log.Info().Str("form_id", formID).Int("items", applied).Msg("form fully populated")
	return res, nil
}

func (s *Synthesizer) submissionFailure(sink broadcast.Sink, formID string, err error, applied, chunkIdx, chunkCount int) error {
	var se *gforms.StatusError
	if errors.As(err, &se) && !se.Transient() {
		log.Error().Int("status", se.StatusCode).Int("chunk", chunkIdx+1).Msg("forms service rejected chunk, aborting remaining")
	}

	if applied > 0 {
		sink.Append(broadcast.SeverityError,
			"Batch %d of %d failed after %d item(s) were applied; the form exists but is incomplete", chunkIdx+1, chunkCount, applied)
		return &PartialSubmissionError{FormID: formID, Applied: applied, Chunk: chunkIdx + 1, Chunks: chunkCount, Err: err}
	}
	sink.Append(broadcast.SeverityError, "Batch %d of %d failed; no items were applied", chunkIdx+1, chunkCount)
	return &SubmissionError{Chunk: chunkIdx + 1, Chunks: chunkCount, FirstOp: applied, Err: err}
}
