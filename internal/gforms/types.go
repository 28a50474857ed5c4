package gforms

// Wire types for the Google Forms v1 batchUpdate protocol. Only the subset
// the synthesizer emits is modeled; unknown response fields are ignored.

// Request is one operation inside a batch. Exactly one member is set.
type Request struct {
	CreateItem     *CreateItemRequest     `json:"createItem,omitempty"`
	UpdateFormInfo *UpdateFormInfoRequest `json:"updateFormInfo,omitempty"`
}

type CreateItemRequest struct {
	Item     Item     `json:"item"`
	Location Location `json:"location"`
}

type Location struct {
	Index int `json:"index"`
}

type UpdateFormInfoRequest struct {
	Info       Info   `json:"info"`
	UpdateMask string `json:"updateMask"`
}

type Info struct {
	Title         string `json:"title,omitempty"`
	DocumentTitle string `json:"documentTitle,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Item is one rendered element of the form: a question, a section page
// break, or a display-only text block.
type Item struct {
	Title         string         `json:"title,omitempty"`
	Description   string         `json:"description,omitempty"`
	QuestionItem  *QuestionItem  `json:"questionItem,omitempty"`
	PageBreakItem *PageBreakItem `json:"pageBreakItem,omitempty"`
	TextItem      *TextItem      `json:"textItem,omitempty"`
}

type QuestionItem struct {
	Question Question `json:"question"`
}

type PageBreakItem struct{}

type TextItem struct{}

type Question struct {
	Required       bool            `json:"required"`
	ChoiceQuestion *ChoiceQuestion `json:"choiceQuestion,omitempty"`
	TextQuestion   *TextQuestion   `json:"textQuestion,omitempty"`
	ScaleQuestion  *ScaleQuestion  `json:"scaleQuestion,omitempty"`
	DateQuestion   *DateQuestion   `json:"dateQuestion,omitempty"`
	TimeQuestion   *TimeQuestion   `json:"timeQuestion,omitempty"`
}

const (
	ChoiceTypeRadio    = "RADIO"
	ChoiceTypeCheckbox = "CHECKBOX"
	ChoiceTypeDropDown = "DROP_DOWN"
)

type ChoiceQuestion struct {
	Type    string   `json:"type"`
	Options []Option `json:"options"`
}

type Option struct {
	Value string `json:"value"`
}

type TextQuestion struct {
	Paragraph bool `json:"paragraph,omitempty"`
}

type ScaleQuestion struct {
	Low       int    `json:"low"`
	High      int    `json:"high"`
	LowLabel  string `json:"lowLabel,omitempty"`
	HighLabel string `json:"highLabel,omitempty"`
}

type DateQuestion struct {
	IncludeTime bool `json:"includeTime"`
	IncludeYear bool `json:"includeYear"`
}

type TimeQuestion struct {
	Duration bool `json:"duration,omitempty"`
}

// Form is the subset of the forms.get response the caller needs.
type Form struct {
	FormID       string `json:"formId"`
	ResponderURI string `json:"responderUri"`
	Info         Info   `json:"info"`
}

type batchUpdateRequest struct {
	Requests []Request `json:"requests"`
}

type createFormRequest struct {
	Info Info `json:"info"`
}
