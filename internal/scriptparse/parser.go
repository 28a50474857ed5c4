// Package scriptparse recovers a form specification from a user-supplied
// script: a JSON document, or Google Apps Script form-builder code
// (FormApp.create / addTextItem / setChoiceValues and friends).
package scriptparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/spec"
)

// jsonScript mirrors the flat JSON shape accepted from script uploads.
// Sections are honored when present; otherwise a flat questions array is
// wrapped in one implicit section.
type jsonScript struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Sections    []struct {
		Title          string `json:"title"`
		Description    string `json:"description"`
		QuestionGroups []struct {
			Title       string         `json:"title"`
			Description string         `json:"description"`
			Questions   []jsonQuestion `json:"questions"`
		} `json:"question_groups"`
	} `json:"sections"`
	Questions []jsonQuestion `json:"questions"`
}

type jsonQuestion struct {
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Options  []string `json:"options"`
	Min      int      `json:"min"`
	Max      int      `json:"max"`
	MinLabel string   `json:"min_label"`
	MaxLabel string   `json:"max_label"`
	Required *bool    `json:"required"`
}

// Parse decodes a script payload: JSON first, Apps Script otherwise.
// defaultRequired applies to questions that do not state a required flag.
func Parse(code string, defaultRequired bool) (spec.FormSpecification, error) {
	if f, err := parseJSON(code, defaultRequired); err == nil {
		return f, nil
	}
	return parseAppsScript(code, defaultRequired)
}

func parseJSON(code string, defaultRequired bool) (spec.FormSpecification, error) {
	var js jsonScript
	if err := sonic.UnmarshalString(strings.TrimSpace(code), &js); err != nil {
		return spec.FormSpecification{}, err
	}

	out := spec.FormSpecification{Title: js.Title, Description: js.Description}
	for _, s := range js.Sections {
		sec := spec.Section{Title: s.Title, Description: s.Description}
		for _, g := range s.QuestionGroups {
			grp := spec.QuestionGroup{Title: g.Title, Description: g.Description}
			for _, q := range g.Questions {
				grp.Questions = append(grp.Questions, convertJSONQuestion(q, defaultRequired))
			}
			sec.QuestionGroups = append(sec.QuestionGroups, grp)
		}
		out.Sections = append(out.Sections, sec)
	}
	if len(out.Sections) == 0 && len(js.Questions) > 0 {
		grp := spec.QuestionGroup{}
		for _, q := range js.Questions {
			grp.Questions = append(grp.Questions, convertJSONQuestion(q, defaultRequired))
		}
		out.Sections = []spec.Section{{QuestionGroups: []spec.QuestionGroup{grp}}}
	}

	if out.QuestionCount() == 0 {
		return spec.FormSpecification{}, fmt.Errorf("script JSON contains no questions")
	}
	return out, nil
}

func convertJSONQuestion(q jsonQuestion, defaultRequired bool) spec.Question {
	required := defaultRequired
	if q.Required != nil {
		required = *q.Required
	}
	return spec.Question{
		Text:          strings.TrimSpace(q.Text),
		Type:          spec.QuestionType(q.Type),
		Options:       q.Options,
		ScaleMin:      q.Min,
		ScaleMax:      q.Max,
		ScaleMinLabel: q.MinLabel,
		ScaleMaxLabel: q.MaxLabel,
		Required:      required,
	}
}

var (
	lineCommentRe  = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	createRe       = regexp.MustCompile(`FormApp\.create\(["'](.*?)["']\)`)
	descriptionRe  = regexp.MustCompile(`(?s)\.setDescription\(["'](.*?)["']\)`)
	addItemRe      = regexp.MustCompile(`form\.add(\w+)Item\(\)`)
	titleRe        = regexp.MustCompile(`(?s)\.setTitle\(["'](.*?)["']\)`)
	requiredRe     = regexp.MustCompile(`\.setRequired\((true|false)\)`)
	helpTextRe     = regexp.MustCompile(`(?s)\.setHelpText\(["'](.*?)["']\)`)
	choiceValuesRe = regexp.MustCompile(`(?s)\.setChoiceValues\(\s*\[(.*?)\]\s*\)`)
	quotedRe       = regexp.MustCompile(`["']((?:\\.|[^"'\\])*)["']`)
	boundsRe       = regexp.MustCompile(`\.setBounds\((\d+),\s*(\d+)\)`)
	labelsRe       = regexp.MustCompile(`\.setLabels\(["'](.*?)["']\s*,\s*["'](.*?)["']\)`)
)

// itemTypes maps Apps Script add*Item names onto the question type set.
// PageBreak and SectionHeader items are structure, not questions.
var itemTypes = map[string]spec.QuestionType{
	"Text":           spec.TypeShortText,
	"ParagraphText":  spec.TypeParagraph,
	"MultipleChoice": spec.TypeMultipleChoice,
	"Checkbox":       spec.TypeCheckbox,
	"List":           spec.TypeDropdown,
	"Scale":          spec.TypeLinearScale,
	"LinearScale":    spec.TypeLinearScale,
	"Date":           spec.TypeDate,
	"Time":           spec.TypeTime,
}

func parseAppsScript(code string, defaultRequired bool) (spec.FormSpecification, error) {
	code = lineCommentRe.ReplaceAllString(code, "")
	code = blockCommentRe.ReplaceAllString(code, "")

	out := spec.FormSpecification{Title: "Form from Script"}
	if m := createRe.FindStringSubmatch(code); m != nil {
		out.Title = unescapeJS(m[1])
	}
	if m := descriptionRe.FindStringSubmatch(code); m != nil {
		out.Description = strings.TrimSpace(unescapeJS(m[1]))
	}

	grp := spec.QuestionGroup{}
	for _, block := range itemBlocks(code) {
		q, ok := parseItemBlock(block, defaultRequired)
		if ok && q.Text != "" {
			grp.Questions = append(grp.Questions, q)
		}
	}

	if len(grp.Questions) == 0 {
		return spec.FormSpecification{}, fmt.Errorf("script contains no recognizable form items")
	}

	log.Debug().Int("questions", len(grp.Questions)).Str("title", out.Title).Msg("apps script parsed")
	out.Sections = []spec.Section{{QuestionGroups: []spec.QuestionGroup{grp}}}
	return out, nil
}

// itemBlocks slices the script into one chunk per form.add*Item() statement,
// each extending through its chained method calls to the terminating
// semicolon or the next add call.
func itemBlocks(code string) []string {
	locs := addItemRe.FindAllStringIndex(code, -1)
	var blocks []string
	for i, loc := range locs {
		end := len(code)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if semi := strings.Index(code[loc[1]:end], ";"); semi >= 0 {
			end = loc[1] + semi
		}
		blocks = append(blocks, code[loc[0]:end])
	}
	return blocks
}

func parseItemBlock(block string, defaultRequired bool) (spec.Question, bool) {
	m := addItemRe.FindStringSubmatch(block)
	if m == nil {
		return spec.Question{}, false
	}
	qType, ok := itemTypes[m[1]]
	if !ok {
		// PageBreak, SectionHeader, Image and the rest are skipped.
		return spec.Question{}, false
	}

	q := spec.Question{Type: qType, Required: defaultRequired}
	if tm := titleRe.FindStringSubmatch(block); tm != nil {
		q.Text = strings.TrimSpace(unescapeJS(tm[1]))
	}
	if rm := requiredRe.FindStringSubmatch(block); rm != nil {
		q.Required = rm[1] == "true"
	}
	if hm := helpTextRe.FindStringSubmatch(block); hm != nil && q.Text != "" {
		// Help text folds into the question text; the normalized model has
		// no per-question description field.
		q.Text += " (" + strings.TrimSpace(unescapeJS(hm[1])) + ")"
	}

	if qType.ChoiceFamily() {
		if cm := choiceValuesRe.FindStringSubmatch(block); cm != nil {
			for _, om := range quotedRe.FindAllStringSubmatch(cm[1], -1) {
				q.Options = append(q.Options, unescapeJS(om[1]))
			}
		}
	}

	if qType == spec.TypeLinearScale {
		q.ScaleMin, q.ScaleMax = 1, 5
		if bm := boundsRe.FindStringSubmatch(block); bm != nil {
			q.ScaleMin, _ = strconv.Atoi(bm[1])
			q.ScaleMax, _ = strconv.Atoi(bm[2])
		}
		if lm := labelsRe.FindStringSubmatch(block); lm != nil {
			q.ScaleMinLabel = unescapeJS(lm[1])
			q.ScaleMaxLabel = unescapeJS(lm[2])
		}
	}

	return q, true
}

func unescapeJS(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\'`, `'`, `\\`, `\`)
	return r.Replace(s)
}
