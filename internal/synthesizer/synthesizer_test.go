package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/gforms"
	"github.com/formloom/formloom/internal/spec"
)

// fakeForms records calls and fails BatchUpdate on configured chunk numbers.
type fakeForms struct {
	createErr   error
	failOnChunk int // 1-based; 0 means never fail
	batchErr    error
	shareErr    error
	getErr      error
	responder   string

	batches [][]gforms.Request
}

func (f *fakeForms) CreateForm(ctx context.Context, title, description string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "form-1", nil
}

func (f *fakeForms) BatchUpdate(ctx context.Context, formID string, reqs []gforms.Request) error {
	if f.failOnChunk > 0 && len(f.batches)+1 == f.failOnChunk {
		return f.batchErr
	}
	f.batches = append(f.batches, reqs)
	return nil
}

func (f *fakeForms) GetForm(ctx context.Context, formID string) (gforms.Form, error) {
	if f.getErr != nil {
		return gforms.Form{}, f.getErr
	}
	return gforms.Form{FormID: formID, ResponderURI: f.responder}, nil
}

func (f *fakeForms) ShareAnyoneWithLink(ctx context.Context, formID string) error { return f.shareErr }

func (f *fakeForms) ViewURL(formID string) string {
	return "https://docs.google.com/forms/d/" + formID + "/viewform"
}

func (f *fakeForms) EditURL(formID string) string {
	return "https://docs.google.com/forms/d/" + formID + "/edit"
}

func flatForm(n int) spec.FormSpecification {
	qs := make([]spec.Question, n)
	for i := range qs {
		qs[i] = spec.Question{Text: fmt.Sprintf("Q%d", i+1), Type: spec.TypeShortText}
	}
	return spec.FormSpecification{
		Title:    "T",
		Sections: []spec.Section{{QuestionGroups: []spec.QuestionGroup{{Questions: qs}}}},
	}
}

func TestFlattenPreservesDocumentOrder(t *testing.T) {
	f := spec.FormSpecification{
		Title: "Exam",
		Sections: []spec.Section{
			{
				Title:       "Passage 1",
				Description: "Read carefully.",
				QuestionGroups: []spec.QuestionGroup{
					{
						Title:     "Questions 1-2",
						Questions: []spec.Question{{Text: "Q1", Type: spec.TypeShortText}, {Text: "Q2", Type: spec.TypeParagraph}},
					},
				},
			},
			{
				QuestionGroups: []spec.QuestionGroup{
					{Questions: []spec.Question{{Text: "Q3", Type: spec.TypeDate}}},
				},
			},
		},
	}

	reqs := Flatten(f)
	// page break, group header, Q1, Q2, then Q3 (untitled section and group
	// emit no structural items).
	wantTitles := []string{"Passage 1", "Questions 1-2", "Q1", "Q2", "Q3"}
	if len(reqs) != len(wantTitles) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(wantTitles))
	}
	for i, req := range reqs {
		if req.CreateItem == nil {
			t.Fatalf("request %d is not a createItem", i)
		}
		if req.CreateItem.Item.Title != wantTitles[i] {
			t.Errorf("request %d title = %q, want %q", i, req.CreateItem.Item.Title, wantTitles[i])
		}
		if req.CreateItem.Location.Index != i {
			t.Errorf("request %d index = %d", i, req.CreateItem.Location.Index)
		}
	}

	if reqs[0].CreateItem.Item.PageBreakItem == nil {
		t.Error("section header should be a page break")
	}
	if reqs[1].CreateItem.Item.TextItem == nil {
		t.Error("group header should be a text item")
	}
	if reqs[2].CreateItem.Item.QuestionItem == nil {
		t.Error("question should be a question item")
	}
}

func TestFlattenQuestionOrderAcrossGroups(t *testing.T) {
	f := spec.FormSpecification{
		Title: "T",
		Sections: []spec.Section{
			{QuestionGroups: []spec.QuestionGroup{
				{Questions: []spec.Question{
					{Text: "A1.q1", Type: spec.TypeShortText},
					{Text: "A1.q2", Type: spec.TypeShortText},
				}},
				{Questions: []spec.Question{{Text: "A2.q1", Type: spec.TypeShortText}}},
			}},
			{QuestionGroups: []spec.QuestionGroup{
				{Questions: []spec.Question{{Text: "B1.q1", Type: spec.TypeShortText}}},
			}},
		},
	}

	reqs := Flatten(f)
	want := []string{"A1.q1", "A1.q2", "A2.q1", "B1.q1"}
	if len(reqs) != len(want) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(want))
	}
	for i, req := range reqs {
		if req.CreateItem.Item.Title != want[i] {
			t.Errorf("position %d = %q, want %q", i, req.CreateItem.Item.Title, want[i])
		}
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	f := flatForm(7)
	a := Flatten(f)
	b := Flatten(f)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].CreateItem.Item.Title != b[i].CreateItem.Item.Title {
			t.Fatalf("titles differ at %d", i)
		}
	}
}

func TestQuestionItemMapping(t *testing.T) {
	t.Run("choice types", func(t *testing.T) {
		cases := []struct {
			qt   spec.QuestionType
			want string
		}{
			{spec.TypeMultipleChoice, gforms.ChoiceTypeRadio},
			{spec.TypeCheckbox, gforms.ChoiceTypeCheckbox},
			{spec.TypeDropdown, gforms.ChoiceTypeDropDown},
		}
		for _, tc := range cases {
			item := questionItem(spec.Question{Text: "Q", Type: tc.qt, Options: []string{"a", "b"}})
			cq := item.QuestionItem.Question.ChoiceQuestion
			if cq == nil || cq.Type != tc.want {
				t.Errorf("%s: choice question = %+v", tc.qt, cq)
			}
			if len(cq.Options) != 2 || cq.Options[0].Value != "a" {
				t.Errorf("%s: options = %+v", tc.qt, cq.Options)
			}
		}
	})

	t.Run("paragraph", func(t *testing.T) {
		item := questionItem(spec.Question{Text: "Q", Type: spec.TypeParagraph})
		tq := item.QuestionItem.Question.TextQuestion
		if tq == nil || !tq.Paragraph {
			t.Errorf("text question = %+v", tq)
		}
	})

	t.Run("linear scale", func(t *testing.T) {
		item := questionItem(spec.Question{
			Text: "Q", Type: spec.TypeLinearScale,
			ScaleMin: 1, ScaleMax: 10, ScaleMinLabel: "bad", ScaleMaxLabel: "good",
			Required: true,
		})
		q := item.QuestionItem.Question
		if !q.Required {
			t.Error("required flag lost")
		}
		sq := q.ScaleQuestion
		if sq == nil || sq.Low != 1 || sq.High != 10 || sq.LowLabel != "bad" || sq.HighLabel != "good" {
			t.Errorf("scale question = %+v", sq)
		}
	})

	t.Run("date includes year", func(t *testing.T) {
		item := questionItem(spec.Question{Text: "Q", Type: spec.TypeDate})
		dq := item.QuestionItem.Question.DateQuestion
		if dq == nil || !dq.IncludeYear {
			t.Errorf("date question = %+v", dq)
		}
	})
}

func TestChunkSplitsWithoutSplittingOperations(t *testing.T) {
	reqs := Flatten(flatForm(12))
	chunks := Chunk(reqs, 5)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if sizes[0] != 5 || sizes[1] != 5 || sizes[2] != 2 {
		t.Errorf("chunk sizes = %v, want [5 5 2]", sizes)
	}

	// Concatenation must reproduce the original order exactly.
	i := 0
	for _, chunk := range chunks {
		for _, req := range chunk {
			if req.CreateItem.Location.Index != i {
				t.Fatalf("operation %d out of order", i)
			}
			i++
		}
	}
}

func TestSubmitAppliesAllChunksInOrder(t *testing.T) {
	api := &fakeForms{responder: "https://docs.google.com/forms/d/e/resp/viewform"}
	s := New(api, WithChunkSize(5))

	res, err := s.Submit(context.Background(), flatForm(12), broadcast.NopSink{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.FormID != "form-1" || res.Applied != 12 {
		t.Errorf("result = %+v", res)
	}
	if res.ViewURL != api.responder {
		t.Errorf("view URL should prefer the responder URI, got %q", res.ViewURL)
	}
	if res.EditURL != "https://docs.google.com/forms/d/form-1/edit" {
		t.Errorf("edit URL = %q", res.EditURL)
	}
	if len(api.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(api.batches))
	}
}

func TestSubmitFallsBackToCanonicalViewURL(t *testing.T) {
	api := &fakeForms{getErr: errors.New("unavailable")}
	res, err := New(api).Submit(context.Background(), flatForm(1), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ViewURL != "https://docs.google.com/forms/d/form-1/viewform" {
		t.Errorf("view URL = %q", res.ViewURL)
	}
}

func TestSubmitCreateFailure(t *testing.T) {
	api := &fakeForms{createErr: errors.New("boom")}
	_, err := New(api).Submit(context.Background(), flatForm(1), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var partial *PartialSubmissionError
	if errors.As(err, &partial) {
		t.Error("create failure must not be partial: nothing was applied")
	}
}

func TestSubmitFirstChunkFailure(t *testing.T) {
	api := &fakeForms{failOnChunk: 1, batchErr: &gforms.StatusError{StatusCode: 400, Body: "bad"}}
	_, err := New(api, WithChunkSize(5)).Submit(context.Background(), flatForm(12), nil)

	var serr *SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SubmissionError, got %v", err)
	}
	if serr.Chunk != 1 || serr.Chunks != 3 {
		t.Errorf("location = chunk %d/%d", serr.Chunk, serr.Chunks)
	}
	var se *gforms.StatusError
	if !errors.As(err, &se) {
		t.Error("underlying status error should be reachable via Unwrap")
	}
}

func TestSubmitLaterChunkFailureIsPartial(t *testing.T) {
	api := &fakeForms{failOnChunk: 2, batchErr: &gforms.StatusError{StatusCode: 400, Body: "bad"}}
	_, err := New(api, WithChunkSize(5)).Submit(context.Background(), flatForm(12), nil)

	var perr *PartialSubmissionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PartialSubmissionError, got %v", err)
	}
	if perr.FormID != "form-1" {
		t.Errorf("form ID = %q", perr.FormID)
	}
	if perr.Applied != 5 {
		t.Errorf("applied = %d, want 5", perr.Applied)
	}
	if perr.Chunk != 2 || perr.Chunks != 3 {
		t.Errorf("location = chunk %d/%d", perr.Chunk, perr.Chunks)
	}
	// No further chunks may be attempted after a failure.
	if len(api.batches) != 1 {
		t.Errorf("batches applied = %d, want 1", len(api.batches))
	}
}

func TestSubmitShareFailureIsBestEffort(t *testing.T) {
	api := &fakeForms{shareErr: errors.New("permission API down")}
	res, err := New(api).Submit(context.Background(), flatForm(2), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Applied != 2 {
		t.Errorf("applied = %d", res.Applied)
	}
}
