// Package spec defines the normalized form specification produced by the
// generator and consumed by the synthesizer, together with its validator.
package spec

// QuestionType enumerates the supported question kinds. The set is closed;
// anything else coming out of the AI response is mapped (or rejected) by the
// validator before it reaches the synthesizer.
type QuestionType string

const (
	TypeShortText      QuestionType = "short_text"
	TypeParagraph      QuestionType = "paragraph"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeCheckbox       QuestionType = "checkbox"
	TypeDropdown       QuestionType = "dropdown"
	TypeLinearScale    QuestionType = "linear_scale"
	TypeDate           QuestionType = "date"
	TypeTime           QuestionType = "time"
)

// Known reports whether t is a member of the closed type set.
func (t QuestionType) Known() bool {
	switch t {
	case TypeShortText, TypeParagraph, TypeMultipleChoice, TypeCheckbox,
		TypeDropdown, TypeLinearScale, TypeDate, TypeTime:
		return true
	}
	return false
}

// ChoiceFamily reports whether t requires a non-empty option list.
func (t QuestionType) ChoiceFamily() bool {
	switch t {
	case TypeMultipleChoice, TypeCheckbox, TypeDropdown:
		return true
	}
	return false
}

// Question is one prompt in the rendered form. Options are only meaningful
// for the choice family; the scale bounds only for linear_scale.
type Question struct {
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	ScaleMin      int          `json:"scale_min,omitempty"`
	ScaleMax      int          `json:"scale_max,omitempty"`
	ScaleMinLabel string       `json:"scale_min_label,omitempty"`
	ScaleMaxLabel string       `json:"scale_max_label,omitempty"`
	Required      bool         `json:"required"`
}

// QuestionGroup bundles related questions (e.g. "Questions 1-5") without
// forcing a section boundary.
type QuestionGroup struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// Section is a top-level division of the form, typically one reading passage
// or one logical topic. A section with a single untitled group is a plain
// container.
type Section struct {
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	QuestionGroups []QuestionGroup `json:"question_groups"`
}

// FormSpecification is the backend-independent description of a form.
type FormSpecification struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// QuestionCount returns the total number of questions across all sections.
func (f *FormSpecification) QuestionCount() int {
	n := 0
	for _, s := range f.Sections {
		for _, g := range s.QuestionGroups {
			n += len(g.Questions)
		}
	}
	return n
}

// FirstQuestion returns the first question in document order, or nil if the
// specification contains none.
func (f *FormSpecification) FirstQuestion() *Question {
	for si := range f.Sections {
		for gi := range f.Sections[si].QuestionGroups {
			if len(f.Sections[si].QuestionGroups[gi].Questions) > 0 {
				return &f.Sections[si].QuestionGroups[gi].Questions[0]
			}
		}
	}
	return nil
}
