package generator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/formloom/formloom/internal/spec"
)

// aiForm mirrors the JSON shape the prompt asks for, kept permissive on
// purpose: the validator owns structural judgement, the parser only has to
// get the text out. A flat root-level "questions" array is accepted for
// responses that ignore the sections instruction.
type aiForm struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Sections    []aiSection  `json:"sections"`
	Questions   []aiQuestion `json:"questions"`
}

type aiSection struct {
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	QuestionGroups []aiQuestionGroup `json:"question_groups"`
	Questions      []aiQuestion      `json:"questions"`
}

type aiQuestionGroup struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Questions   []aiQuestion `json:"questions"`
}

type aiQuestion struct {
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	ScaleMin      int      `json:"scale_min"`
	ScaleMax      int      `json:"scale_max"`
	ScaleMinLabel string   `json:"scale_min_label"`
	ScaleMaxLabel string   `json:"scale_max_label"`
	Required      *bool    `json:"required"`
}

// Parse converts the raw model response into a candidate specification:
// structured JSON decode first, then the same decode after control-character
// repair, then permissive pattern extraction. defaultRequired fills the
// required flag wherever the response omits it.
func Parse(raw string, defaultRequired bool) (spec.FormSpecification, error) {
	cleaned := cleanJSONResponse(raw)

	if f, err := parseStructured(cleaned, defaultRequired); err == nil {
		return f, nil
	}

	// Unescaped control characters inside string values are the most common
	// decode failure for model output; repair and retry before giving up on
	// the structured path.
	if f, err := parseStructured(escapeControlChars(cleaned), defaultRequired); err == nil {
		return f, nil
	}

	if f, err := parseFallback(raw, defaultRequired); err == nil {
		return f, nil
	}

	return spec.FormSpecification{}, &ParseError{
		Excerpt: truncate(raw, 1000),
		Err:     fmt.Errorf("response is neither valid JSON nor recognizable question text"),
	}
}

var fenceRe = regexp.MustCompile("```(?:json)?\\s*")

// cleanJSONResponse strips markdown fences and isolates the outermost JSON
// object.
func cleanJSONResponse(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// escapeControlChars escapes raw control characters that appear inside JSON
// string literals, leaving structure outside strings untouched.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			b.WriteByte(c)
			escaped = true
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case inString && c < 0x20:
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			case '\b':
				b.WriteString(`\b`)
			case '\f':
				b.WriteString(`\f`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func parseStructured(cleaned string, defaultRequired bool) (spec.FormSpecification, error) {
	var f aiForm
	if err := sonic.UnmarshalString(cleaned, &f); err != nil {
		return spec.FormSpecification{}, err
	}

	out := spec.FormSpecification{Title: f.Title, Description: f.Description}

	for _, s := range f.Sections {
		sec := spec.Section{Title: s.Title, Description: s.Description}
		for _, g := range s.QuestionGroups {
			grp := spec.QuestionGroup{Title: g.Title, Description: g.Description}
			for _, q := range g.Questions {
				grp.Questions = append(grp.Questions, convertQuestion(q, defaultRequired))
			}
			sec.QuestionGroups = append(sec.QuestionGroups, grp)
		}
		// Sections that carry a bare questions array get one implicit group.
		if len(s.Questions) > 0 {
			grp := spec.QuestionGroup{}
			for _, q := range s.Questions {
				grp.Questions = append(grp.Questions, convertQuestion(q, defaultRequired))
			}
			sec.QuestionGroups = append(sec.QuestionGroups, grp)
		}
		out.Sections = append(out.Sections, sec)
	}

	// Root-level flat questions become a single implicit section.
	if len(out.Sections) == 0 && len(f.Questions) > 0 {
		grp := spec.QuestionGroup{}
		for _, q := range f.Questions {
			grp.Questions = append(grp.Questions, convertQuestion(q, defaultRequired))
		}
		out.Sections = []spec.Section{{QuestionGroups: []spec.QuestionGroup{grp}}}
	}

	if out.QuestionCount() == 0 {
		return spec.FormSpecification{}, fmt.Errorf("decoded document contains no questions")
	}
	return out, nil
}

func convertQuestion(q aiQuestion, defaultRequired bool) spec.Question {
	required := defaultRequired
	if q.Required != nil {
		required = *q.Required
	}
	return spec.Question{
		Text:          strings.TrimSpace(q.Text),
		Type:          spec.QuestionType(q.Type),
		Options:       q.Options,
		ScaleMin:      q.ScaleMin,
		ScaleMax:      q.ScaleMax,
		ScaleMinLabel: q.ScaleMinLabel,
		ScaleMaxLabel: q.ScaleMaxLabel,
		Required:      required,
	}
}

var (
	headingRe  = regexp.MustCompile(`^\s*(?:#{1,3}\s+(.+)|(?:Section|SECTION|Part|PART)\s*[\d:.-]*\s*(.*))$`)
	questionRe = regexp.MustCompile(`^\s*(?:\d+[.)]\s+|[-*]\s+|[Qq]\d*[:.]\s*)(.+)$`)
	optionRe   = regexp.MustCompile(`^\s*(?:[A-Da-d][.)]\s+)(.+)$`)
	typeTagRe  = regexp.MustCompile(`(?i)\s*[\[(](?:type:\s*)?([a-z_ -]+?(?:\s*\(\s*\d+\s*-\s*\d+\s*\))?)[\])]\s*$`)
	scaleRe    = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)
)

// parseFallback recovers a specification from plain text: heading lines start
// sections, numbered/bulleted lines start questions, lettered lines become
// options of the preceding question, and a trailing bracketed tag sets the
// question type.
func parseFallback(raw string, defaultRequired bool) (spec.FormSpecification, error) {
	out := spec.FormSpecification{}
	var cur *spec.Section
	var curQ *spec.Question

	flushQuestion := func() {
		if curQ == nil {
			return
		}
		if cur == nil {
			out.Sections = append(out.Sections, spec.Section{QuestionGroups: []spec.QuestionGroup{{}}})
			cur = &out.Sections[len(out.Sections)-1]
		}
		grp := &cur.QuestionGroups[0]
		grp.Questions = append(grp.Questions, *curQ)
		curQ = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := optionRe.FindStringSubmatch(line); m != nil && curQ != nil {
			curQ.Options = append(curQ.Options, strings.TrimSpace(m[1]))
			if !curQ.Type.ChoiceFamily() {
				curQ.Type = spec.TypeMultipleChoice
			}
			continue
		}

		if m := questionRe.FindStringSubmatch(line); m != nil {
			flushQuestion()
			text := strings.TrimSpace(m[1])
			q := spec.Question{Type: spec.TypeShortText, Required: defaultRequired}
			if tm := typeTagRe.FindStringSubmatch(text); tm != nil {
				tag := tm[1]
				text = strings.TrimSpace(text[:len(text)-len(tm[0])])
				mapped, _ := spec.MapType(tag)
				q.Type = mapped
				if q.Type == spec.TypeLinearScale {
					if sm := scaleRe.FindStringSubmatch(tag); sm != nil {
						q.ScaleMin, _ = strconv.Atoi(sm[1])
						q.ScaleMax, _ = strconv.Atoi(sm[2])
					}
				}
			}
			q.Text = text
			curQ = &q
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flushQuestion()
			title := strings.TrimSpace(m[1] + m[2])
			if out.Title == "" && len(out.Sections) == 0 && title != "" {
				out.Title = title
				continue
			}
			out.Sections = append(out.Sections, spec.Section{Title: title, QuestionGroups: []spec.QuestionGroup{{}}})
			cur = &out.Sections[len(out.Sections)-1]
			continue
		}

		// Continuation lines extend the current question text.
		if curQ != nil {
			curQ.Text += " " + trimmed
		} else if out.Title == "" {
			out.Title = trimmed
		}
	}
	flushQuestion()

	if out.QuestionCount() == 0 {
		return spec.FormSpecification{}, fmt.Errorf("no question lines recognized")
	}
	return out, nil
}
