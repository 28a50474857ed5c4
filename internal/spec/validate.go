package spec

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	defaultScaleMin = 1
	defaultScaleMax = 5

	// placeholderTitleLimit caps how much of the first question's text is
	// borrowed when repairing a missing form title.
	placeholderTitleLimit = 60
)

// Violation is one fatal structural defect found during validation. Section,
// Group and Question are zero-based indices into the candidate specification.
type Violation struct {
	Section  int    `json:"section"`
	Group    int    `json:"group"`
	Question int    `json:"question"`
	Text     string `json:"text,omitempty"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
}

// ValidationError carries every fatal violation found, not just the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("specification invalid: %s", strings.Join(msgs, "; "))
}

// Repair records one non-fatal fix applied by the validator, so silent intent
// loss (e.g. an unmapped question type) stays visible to the caller.
type Repair struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Report summarizes the non-fatal repairs applied to a candidate
// specification. An empty report means the input was already valid.
type Report struct {
	Repairs []Repair `json:"repairs,omitempty"`
}

func (r *Report) add(rule, format string, args ...any) {
	r.Repairs = append(r.Repairs, Repair{Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// typeSynonyms maps loosely-worded type tags coming out of the AI response
// (or a parsed script) onto the closed QuestionType set. Keys are normalized:
// lowercased, parentheticals stripped, spaces and dashes collapsed to
// underscores.
var typeSynonyms = map[string]QuestionType{
	"text":              TypeShortText,
	"short":             TypeShortText,
	"short_answer":      TypeShortText,
	"short_text":        TypeShortText,
	"fill_in":           TypeShortText,
	"fill_in_the_blank": TypeShortText,
	"paragraph":         TypeParagraph,
	"long_text":         TypeParagraph,
	"long_answer":       TypeParagraph,
	"textarea":          TypeParagraph,
	"essay":             TypeParagraph,
	"choice":            TypeMultipleChoice,
	"multiple_choice":   TypeMultipleChoice,
	"multiplechoice":    TypeMultipleChoice,
	"radio":             TypeMultipleChoice,
	"single_choice":     TypeMultipleChoice,
	"mcq":               TypeMultipleChoice,
	"checkbox":          TypeCheckbox,
	"checkboxes":        TypeCheckbox,
	"multi_select":      TypeCheckbox,
	"multiple_select":   TypeCheckbox,
	"dropdown":          TypeDropdown,
	"drop_down":         TypeDropdown,
	"list":              TypeDropdown,
	"select":            TypeDropdown,
	"linear_scale":      TypeLinearScale,
	"scale":             TypeLinearScale,
	"rating":            TypeLinearScale,
	"likert":            TypeLinearScale,
	"date":              TypeDate,
	"time":              TypeTime,
}

// normalizeTypeTag reduces a raw type string to synonym-table form:
// "Rating (1-5)" -> "rating", "Drop Down" -> "drop_down".
func normalizeTypeTag(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "(["); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// MapType resolves a raw type tag to a member of the closed type set. ok is
// false when no synonym matched and the short_text default was used.
func MapType(raw string) (QuestionType, bool) {
	norm := normalizeTypeTag(raw)
	if t := QuestionType(norm); t.Known() {
		return t, true
	}
	if t, found := typeSynonyms[norm]; found {
		return t, true
	}
	return TypeShortText, false
}

// Validate checks a candidate specification, applies the deterministic
// repairs, and returns the repaired copy. Fatal defects are collected into a
// single *ValidationError so the caller sees every problem at once.
//
// Validation is idempotent: running it on its own output applies no further
// repairs. A specification returned without error satisfies every structural
// precondition the batch-update synthesizer assumes.
func Validate(in FormSpecification) (FormSpecification, Report, error) {
	out := clone(in)
	var report Report
	var verr ValidationError

	// Rule 6 first half: drop empty groups and sections so index-based
	// violation positions below refer to what will actually be submitted.
	for si := 0; si < len(out.Sections); si++ {
		sec := &out.Sections[si]
		kept := sec.QuestionGroups[:0]
		for _, g := range sec.QuestionGroups {
			if len(g.Questions) > 0 {
				kept = append(kept, g)
			}
		}
		if dropped := len(sec.QuestionGroups) - len(kept); dropped > 0 {
			report.add("empty_group", "dropped %d empty question group(s) from section %q", dropped, sec.Title)
		}
		sec.QuestionGroups = kept
	}
	keptSections := out.Sections[:0]
	for _, sec := range out.Sections {
		if len(sec.QuestionGroups) > 0 {
			keptSections = append(keptSections, sec)
		} else {
			report.add("empty_section", "dropped empty section %q", sec.Title)
		}
	}
	out.Sections = keptSections

	if len(out.Sections) == 0 {
		verr.Violations = append(verr.Violations, Violation{
			Section: -1, Group: -1, Question: -1,
			Rule:    "no_questions",
			Message: "specification contains no questions",
		})
		return FormSpecification{}, report, &verr
	}

	for si := range out.Sections {
		for gi := range out.Sections[si].QuestionGroups {
			qs := out.Sections[si].QuestionGroups[gi].Questions
			for qi := range qs {
				q := &qs[qi]

				// Rule 2: unrecognized type tags are mapped best-effort.
				if !q.Type.Known() {
					mapped, matched := MapType(string(q.Type))
					if matched {
						report.add("type_synonym", "question %q: mapped type %q to %q", q.Text, q.Type, mapped)
					} else {
						report.add("type_default", "question %q: unrecognized type %q, defaulting to %q", q.Text, q.Type, TypeShortText)
					}
					q.Type = mapped
				}

				// Rule 3: choice questions without options are fatal. Options
				// cannot be invented without misrepresenting user intent.
				if q.Type.ChoiceFamily() && len(q.Options) == 0 {
					verr.Violations = append(verr.Violations, Violation{
						Section: si, Group: gi, Question: qi, Text: q.Text,
						Rule:    "missing_options",
						Message: fmt.Sprintf("question %q (section %d, question %d) has type %q but no options", q.Text, si, qi, q.Type),
					})
					continue
				}
				if !q.Type.ChoiceFamily() {
					q.Options = nil
				}

				// Rule 4: absent or inverted scale bounds get the defaults.
				if q.Type == TypeLinearScale {
					if q.ScaleMin >= q.ScaleMax || q.ScaleMax == 0 {
						report.add("scale_bounds", "question %q: scale bounds %d..%d repaired to %d..%d",
							q.Text, q.ScaleMin, q.ScaleMax, defaultScaleMin, defaultScaleMax)
						q.ScaleMin = defaultScaleMin
						q.ScaleMax = defaultScaleMax
					}
				} else {
					q.ScaleMin, q.ScaleMax = 0, 0
					q.ScaleMinLabel, q.ScaleMaxLabel = "", ""
				}
			}
		}
	}

	// Rule 1: a missing title is repaired from the first question.
	if strings.TrimSpace(out.Title) == "" {
		title := "Generated Form"
		if q := out.FirstQuestion(); q != nil {
			text := strings.TrimSpace(q.Text)
			if len(text) > placeholderTitleLimit {
				text = text[:placeholderTitleLimit]
			}
			if text != "" {
				title = "Form: " + text
			}
		}
		report.add("missing_title", "empty title repaired to %q", title)
		out.Title = title
	}

	if len(verr.Violations) > 0 {
		return FormSpecification{}, report, &verr
	}

	if len(report.Repairs) > 0 {
		log.Debug().Int("repairs", len(report.Repairs)).Str("title", out.Title).Msg("specification repaired")
	}
	return out, report, nil
}

func clone(in FormSpecification) FormSpecification {
	out := in
	out.Sections = make([]Section, len(in.Sections))
	for i, s := range in.Sections {
		cs := s
		cs.QuestionGroups = make([]QuestionGroup, len(s.QuestionGroups))
		for j, g := range s.QuestionGroups {
			cg := g
			cg.Questions = make([]Question, len(g.Questions))
			copy(cg.Questions, g.Questions)
			for k := range cg.Questions {
				if len(g.Questions[k].Options) > 0 {
					cg.Questions[k].Options = append([]string(nil), g.Questions[k].Options...)
				}
			}
			cs.QuestionGroups[j] = cg
		}
		out.Sections[i] = cs
	}
	return out
}
