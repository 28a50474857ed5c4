package generator

import "fmt"

// systemPrompt is the fixed instructional wrapper placed in front of every
// prompt body. It pins the response to a single JSON document using the
// closed question-type set, so the structured parser almost always wins and
// the pattern fallback is a safety net rather than the normal path.
const systemPrompt = `You are an expert at designing online forms and exams.
Given content (a description, a document, or an exam paper), produce a form
specification as a single JSON object, and nothing else. Use this structure:

{
  "title": "Form title",
  "description": "Form description",
  "sections": [
    {
      "title": "Section title (e.g. 'READING PASSAGE 1')",
      "description": "Section description or passage text",
      "question_groups": [
        {
          "title": "Group title (e.g. 'Questions 1-5')",
          "description": "Optional group instructions",
          "questions": [
            {
              "text": "Question text",
              "type": "short_text | paragraph | multiple_choice | checkbox | dropdown | linear_scale | date | time",
              "options": ["only for multiple_choice, checkbox and dropdown"],
              "scale_min": 1,
              "scale_max": 5,
              "required": true
            }
          ]
        }
      ]
    }
  ]
}

Rules:
- ALWAYS use the "sections" array. If the content has no clear sections,
  create one section containing a single question group with all questions.
- Use "question_groups" to keep related questions together (e.g. address
  sub-fields, or "Questions 6-9") without forcing a section boundary.
- Extract ALL questions. If the content states a question count, your output
  must contain exactly that many questions; count them before responding.
- Questions with labelled options (A, B, C, D) are "multiple_choice"; strip
  the labels from the option values.
- Fill-in-the-blank questions are "short_text"; keep the blank markers
  (......... or ______) in the question text and emit no options.
- Rating or scale questions are "linear_scale" with integer scale_min and
  scale_max.
- Reading passages belong in the section description, not in question text.
- Return ONLY the JSON object: no markdown fences, no commentary.`

// buildPrompt assembles the deterministic wrapper around the prompt body.
// Identical input yields an identical prompt.
func buildPrompt(body string, defaultRequired bool) string {
	req := "false"
	if defaultRequired {
		req = "true"
	}
	return fmt.Sprintf("%s\n\nUnless the content says otherwise, set \"required\": %s on every question.\n\nCONTENT:\n%s", systemPrompt, req, body)
}
