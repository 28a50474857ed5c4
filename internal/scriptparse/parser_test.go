package scriptparse

import (
	"testing"

	"github.com/formloom/formloom/internal/spec"
)

const appsScript = `
// Survey builder
function createForm() {
  var form = FormApp.create('Event Feedback');
  form.setDescription('Tell us about the event.');

  form.addTextItem()
      .setTitle('Your name')
      .setRequired(true);

  form.addParagraphTextItem()
      .setTitle('What did you enjoy most?');

  form.addMultipleChoiceItem()
      .setTitle('Would you attend again?')
      .setChoiceValues(['Yes', 'No', 'Maybe'])
      .setRequired(true);

  form.addListItem()
      .setTitle('How did you hear about us?')
      .setChoiceValues(['Email', 'Social media', 'A friend']);

  form.addScaleItem()
      .setTitle('Rate the venue')
      .setBounds(1, 10)
      .setLabels('Poor', 'Excellent');

  form.addDateItem()
      .setTitle('Which day did you attend?');

  /* page breaks are structure, not questions */
  form.addPageBreakItem().setTitle('Part 2');

  form.addCheckboxItem()
      .setTitle('Pick all sessions you joined')
      .setChoiceValues(['Keynote', 'Workshop']);
}
`

func TestParseAppsScript(t *testing.T) {
	f, err := Parse(appsScript, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.Title != "Event Feedback" {
		t.Errorf("title = %q", f.Title)
	}
	if f.Description != "Tell us about the event." {
		t.Errorf("description = %q", f.Description)
	}
	if f.QuestionCount() != 7 {
		t.Fatalf("question count = %d, want 7 (page break excluded)", f.QuestionCount())
	}

	qs := f.Sections[0].QuestionGroups[0].Questions

	if qs[0].Type != spec.TypeShortText || !qs[0].Required {
		t.Errorf("name question = %+v", qs[0])
	}
	if qs[1].Type != spec.TypeParagraph || qs[1].Required {
		t.Errorf("paragraph question should stay optional without setRequired: %+v", qs[1])
	}
	if qs[2].Type != spec.TypeMultipleChoice || len(qs[2].Options) != 3 {
		t.Errorf("multiple choice question = %+v", qs[2])
	}
	if qs[3].Type != spec.TypeDropdown || qs[3].Options[2] != "A friend" {
		t.Errorf("list question = %+v", qs[3])
	}
	if qs[4].Type != spec.TypeLinearScale || qs[4].ScaleMin != 1 || qs[4].ScaleMax != 10 {
		t.Errorf("scale question = %+v", qs[4])
	}
	if qs[4].ScaleMinLabel != "Poor" || qs[4].ScaleMaxLabel != "Excellent" {
		t.Errorf("scale labels = %q..%q", qs[4].ScaleMinLabel, qs[4].ScaleMaxLabel)
	}
	if qs[5].Type != spec.TypeDate {
		t.Errorf("date question = %+v", qs[5])
	}
	if qs[6].Type != spec.TypeCheckbox {
		t.Errorf("checkbox question = %+v", qs[6])
	}
}

func TestParseAppsScriptDefaultRequired(t *testing.T) {
	code := `var form = FormApp.create('T');
form.addTextItem().setTitle('Q');`

	f, err := Parse(code, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.FirstQuestion().Required {
		t.Error("defaultRequired=true should apply when setRequired is absent")
	}
}

func TestParseAppsScriptScaleDefaults(t *testing.T) {
	code := `var form = FormApp.create('T');
form.addScaleItem().setTitle('Rate');`

	f, err := Parse(code, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	q := f.FirstQuestion()
	if q.ScaleMin != 1 || q.ScaleMax != 5 {
		t.Errorf("scale bounds = %d..%d, want 1..5", q.ScaleMin, q.ScaleMax)
	}
}

func TestParseAppsScriptHelpTextFoldsIntoQuestion(t *testing.T) {
	code := `var form = FormApp.create('T');
form.addTextItem().setTitle('Your ID').setHelpText('As printed on the badge');`

	f, err := Parse(code, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := f.FirstQuestion().Text; got != "Your ID (As printed on the badge)" {
		t.Errorf("text = %q", got)
	}
}

func TestParseJSONScript(t *testing.T) {
	code := `{
		"title": "Signup",
		"questions": [
			{"text": "Name", "type": "short_text", "required": true},
			{"text": "Team", "type": "dropdown", "options": ["Red", "Blue"], "required": false},
			{"text": "Mood", "type": "linear_scale", "min": 1, "max": 7}
		]
	}`

	f, err := Parse(code, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Title != "Signup" || f.QuestionCount() != 3 {
		t.Fatalf("parsed = %+v", f)
	}

	qs := f.Sections[0].QuestionGroups[0].Questions
	if qs[1].Required {
		t.Error("explicit required=false must win over the default")
	}
	if !qs[2].Required {
		t.Error("omitted required must take the default")
	}
	if qs[2].ScaleMax != 7 {
		t.Errorf("scale max = %d", qs[2].ScaleMax)
	}
}

func TestParseJSONScriptWithSections(t *testing.T) {
	code := `{
		"title": "Structured",
		"sections": [{
			"title": "S1",
			"question_groups": [{
				"title": "G1",
				"questions": [{"text": "Q1", "type": "paragraph"}]
			}]
		}]
	}`

	f, err := Parse(code, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Sections) != 1 || f.Sections[0].Title != "S1" || f.Sections[0].QuestionGroups[0].Title != "G1" {
		t.Errorf("structure lost: %+v", f)
	}
}

func TestParseRejectsUnrecognizableInput(t *testing.T) {
	if _, err := Parse("SELECT * FROM forms;", true); err == nil {
		t.Fatal("expected error for unrecognizable input")
	}
	if _, err := Parse(`{"title": "empty"}`, true); err == nil {
		t.Fatal("expected error for JSON without questions")
	}
}
