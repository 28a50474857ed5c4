package creator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/generator"
	"github.com/formloom/formloom/internal/gforms"
	"github.com/formloom/formloom/internal/spec"
	"github.com/formloom/formloom/internal/synthesizer"
)

type stubGenerator struct {
	gotPrompt   string
	gotRequired bool
	result      spec.FormSpecification
	err         error
}

func (s *stubGenerator) Generate(ctx context.Context, promptBody string, defaultRequired bool, sink broadcast.Sink) (spec.FormSpecification, error) {
	s.gotPrompt = promptBody
	s.gotRequired = defaultRequired
	if s.err != nil {
		return spec.FormSpecification{}, s.err
	}
	return s.result, nil
}

type stubFetcher struct {
	text string
	err  error
}

func (s *stubFetcher) FetchText(ctx context.Context, urlOrID string) (string, error) {
	return s.text, s.err
}

type stubForms struct {
	batches int
}

func (s *stubForms) CreateForm(ctx context.Context, title, description string) (string, error) {
	return "form-1", nil
}

func (s *stubForms) BatchUpdate(ctx context.Context, formID string, reqs []gforms.Request) error {
	s.batches++
	return nil
}

func (s *stubForms) GetForm(ctx context.Context, formID string) (gforms.Form, error) {
	return gforms.Form{FormID: formID}, nil
}

func (s *stubForms) ShareAnyoneWithLink(ctx context.Context, formID string) error { return nil }
func (s *stubForms) ViewURL(formID string) string                                 { return "view/" + formID }
func (s *stubForms) EditURL(formID string) string                                 { return "edit/" + formID }

func candidateSpec() spec.FormSpecification {
	return spec.FormSpecification{
		Title: "Quiz",
		Sections: []spec.Section{{
			QuestionGroups: []spec.QuestionGroup{{
				Questions: []spec.Question{{Text: "Q1", Type: "rating"}},
			}},
		}},
	}
}

func newTestCreator(gen *stubGenerator, docs *stubFetcher) (*Creator, *broadcast.Registry) {
	logs := broadcast.NewRegistry(time.Minute)
	return New(gen, docs, synthesizer.New(&stubForms{}), logs), logs
}

func sessionEntries(t *testing.T, logs *broadcast.Registry, id string) []broadcast.Entry {
	t.Helper()
	ch, err := logs.Stream(context.Background(), id)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var out []broadcast.Entry
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("session log never terminated")
		}
	}
}

func TestFromTextValidatesCandidate(t *testing.T) {
	gen := &stubGenerator{result: candidateSpec()}
	c, logs := newTestCreator(gen, &stubFetcher{})

	res, err := c.FromText(context.Background(), "make a quiz", true)
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if gen.gotPrompt != "make a quiz" || !gen.gotRequired {
		t.Errorf("generator saw prompt=%q required=%v", gen.gotPrompt, gen.gotRequired)
	}

	// The loose "rating" type must come back normalized, with the repair
	// both reported and logged.
	if got := res.Spec.FirstQuestion().Type; got != spec.TypeLinearScale {
		t.Errorf("type = %s, want linear_scale", got)
	}
	if len(res.Repairs) == 0 {
		t.Error("expected repair report for the synonym mapping")
	}

	entries := sessionEntries(t, logs, res.SessionID)
	last := entries[len(entries)-1]
	if !last.Terminal || last.Severity != broadcast.SeveritySuccess {
		t.Errorf("terminal entry = %+v", last)
	}
}

func TestFromTextRejectsEmptyInput(t *testing.T) {
	c, _ := newTestCreator(&stubGenerator{}, &stubFetcher{})
	if _, err := c.FromText(context.Background(), "   ", true); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestFromTextGeneratorErrorTypeSurvives(t *testing.T) {
	genErr := &generator.RateLimitError{Err: errors.New("quota")}
	c, _ := newTestCreator(&stubGenerator{err: genErr}, &stubFetcher{})

	_, err := c.FromText(context.Background(), "make a quiz", true)
	var rlErr *generator.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("error type must survive the pipeline, got %v", err)
	}
}

func TestFromFileExtractsBeforeGenerating(t *testing.T) {
	gen := &stubGenerator{result: candidateSpec()}
	c, _ := newTestCreator(gen, &stubFetcher{})

	_, err := c.FromFile(context.Background(), "notes.txt", []byte("quiz about rivers"), false)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if gen.gotPrompt != "quiz about rivers" {
		t.Errorf("prompt = %q", gen.gotPrompt)
	}
	if gen.gotRequired {
		t.Error("defaultRequired=false lost")
	}
}

func TestFromFileUnsupportedType(t *testing.T) {
	c, _ := newTestCreator(&stubGenerator{}, &stubFetcher{})
	if _, err := c.FromFile(context.Background(), "img.png", []byte{0x89, 0x50}, true); err == nil {
		t.Fatal("expected error for unsupported upload")
	}
}

func TestFromDocFetchesThenGenerates(t *testing.T) {
	gen := &stubGenerator{result: candidateSpec()}
	c, _ := newTestCreator(gen, &stubFetcher{text: "doc body"})

	res, err := c.FromDoc(context.Background(), "doc-42", true)
	if err != nil {
		t.Fatalf("FromDoc: %v", err)
	}
	if gen.gotPrompt != "doc body" {
		t.Errorf("prompt = %q", gen.gotPrompt)
	}
	if res.SessionID == "" {
		t.Error("session ID missing")
	}
}

func TestFromDocFetchFailure(t *testing.T) {
	c, _ := newTestCreator(&stubGenerator{}, &stubFetcher{err: errors.New("not shared")})
	if _, err := c.FromDoc(context.Background(), "doc-42", true); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestFromScriptSkipsGenerator(t *testing.T) {
	gen := &stubGenerator{}
	c, _ := newTestCreator(gen, &stubFetcher{})

	code := `var form = FormApp.create('T');
form.addTextItem().setTitle('Q');`
	res, err := c.FromScript(context.Background(), code, true)
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	if gen.gotPrompt != "" {
		t.Error("script path must not call the generator")
	}
	if res.Spec.QuestionCount() != 1 {
		t.Errorf("question count = %d", res.Spec.QuestionCount())
	}
}

func TestCreateSubmitsValidatedSpec(t *testing.T) {
	forms := &stubForms{}
	logs := broadcast.NewRegistry(time.Minute)
	c := New(&stubGenerator{}, &stubFetcher{}, synthesizer.New(forms), logs)

	res, err := c.Create(context.Background(), candidateSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.FormID != "form-1" || res.Applied != 1 {
		t.Errorf("result = %+v", res)
	}
	if forms.batches != 1 {
		t.Errorf("batches = %d", forms.batches)
	}

	entries := sessionEntries(t, logs, res.SessionID)
	if !entries[len(entries)-1].Terminal {
		t.Error("submit session must terminate")
	}
}

func TestCreateRejectsInvalidSpec(t *testing.T) {
	c, _ := newTestCreator(&stubGenerator{}, &stubFetcher{})

	bad := spec.FormSpecification{
		Title: "Broken",
		Sections: []spec.Section{{
			QuestionGroups: []spec.QuestionGroup{{
				Questions: []spec.Question{{Text: "Pick", Type: spec.TypeDropdown}},
			}},
		}},
	}
	_, err := c.Create(context.Background(), bad)
	var verr *spec.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}
