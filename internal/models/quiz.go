package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuizType is the kind of a quiz item
type QuizType string

const (
	QuizTypeMCQ  QuizType = "mcq"
	QuizTypeFill QuizType = "fill"
	// QuizTypeReorder is only kept for evaluating items stored by older versions, nothing generates it
	QuizTypeReorder QuizType = "reorder"
)

// IsValid reports whether the type is known
func (t QuizType) IsValid() bool {
	return t == QuizTypeMCQ || t == QuizTypeFill || t == QuizTypeReorder
}

// IsGeneratable reports whether items of this type can be produced from a transcript
func (t QuizType) IsGeneratable() bool {
	return t == QuizTypeMCQ || t == QuizTypeFill
}

// BlankMarker marks the gap in a fill-in-the-blank sentence
const BlankMarker = "＿＿＿"

// Default question texts used when a payload carries none
const (
	DefaultMCQQuestion     = "この会話の内容について正しいものはどれですか？"
	DefaultFillQuestion    = "空欄に入る言葉を選んでください"
	DefaultReorderQuestion = "正しい順番に並べ替えてください"
)

// QuizPayload is the kind-specific content of a quiz item.
// It is implemented by MultipleChoice, FillBlank and LegacyReorder only.
type QuizPayload interface {
	Kind() QuizType
	Validate() error
	quizPayload()
}

// MultipleChoice is a question with one correct option
type MultipleChoice struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"`
}

func (MultipleChoice) Kind() QuizType { return QuizTypeMCQ }
func (MultipleChoice) quizPayload()   {}

// Validate checks the option list and the correct index
func (p MultipleChoice) Validate() error {
	if len(p.Options) < 2 {
		return fmt.Errorf("mcq needs at least 2 options, got %d", len(p.Options))
	}
	if p.CorrectIndex < 0 || p.CorrectIndex >= len(p.Options) {
		return fmt.Errorf("mcq correctIndex %d out of range [0,%d)", p.CorrectIndex, len(p.Options))
	}
	return nil
}

// FillBlank is a sentence with a single gap
type FillBlank struct {
	Sentence  string   `json:"sentence"`
	BlankWord string   `json:"blankWord"`
	Options   []string `json:"options"`
	Hint      string   `json:"hint,omitempty"`
}

func (FillBlank) Kind() QuizType { return QuizTypeFill }
func (FillBlank) quizPayload()   {}

// Validate checks there is exactly one blank and the answer is among the options
func (p FillBlank) Validate() error {
	if n := strings.Count(p.Sentence, BlankMarker); n != 1 {
		return fmt.Errorf("fill sentence must contain exactly one %s, got %d", BlankMarker, n)
	}
	if p.BlankWord == "" {
		return fmt.Errorf("fill blankWord is empty")
	}
	for _, option := range p.Options {
		if option == p.BlankWord {
			return nil
		}
	}
	return fmt.Errorf("fill options do not contain blankWord %q", p.BlankWord)
}

// LegacyReorder asks to put sentence segments in order
type LegacyReorder struct {
	OriginalSentence string   `json:"originalSentence"`
	Segments         []string `json:"segments"`
	CorrectOrder     []int    `json:"correctOrder"`
}

func (LegacyReorder) Kind() QuizType { return QuizTypeReorder }
func (LegacyReorder) quizPayload()   {}

// Validate checks that CorrectOrder is a permutation of segment indices
func (p LegacyReorder) Validate() error {
	if len(p.CorrectOrder) != len(p.Segments) {
		return fmt.Errorf("reorder has %d segments but %d order entries", len(p.Segments), len(p.CorrectOrder))
	}
	seen := make([]bool, len(p.Segments))
	for _, idx := range p.CorrectOrder {
		if idx < 0 || idx >= len(seen) || seen[idx] {
			return fmt.Errorf("reorder correctOrder is not a permutation")
		}
		seen[idx] = true
	}
	return nil
}

// required keys per kind, a missing key would otherwise decode as a zero value
var requiredPayloadKeys = map[QuizType][]string{
	QuizTypeMCQ:     {"options", "correctIndex"},
	QuizTypeFill:    {"sentence", "blankWord", "options"},
	QuizTypeReorder: {"originalSentence", "segments", "correctOrder"},
}

// DecodePayload decodes raw JSON into the payload variant of the given kind and validates it
func DecodePayload(kind QuizType, raw []byte) (QuizPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty %s payload", kind)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	keys, ok := requiredPayloadKeys[kind]
	if !ok {
		return nil, fmt.Errorf("unknown quiz type %q", kind)
	}
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%s payload is missing %q", kind, key)
		}
	}

	var payload QuizPayload
	switch kind {
	case QuizTypeMCQ:
		var p MultipleChoice
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid mcq payload: %w", err)
		}
		payload = p
	case QuizTypeFill:
		var p FillBlank
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid fill payload: %w", err)
		}
		payload = p
	case QuizTypeReorder:
		var p LegacyReorder
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid reorder payload: %w", err)
		}
		payload = p
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// QuestionFor returns the question text shown for a payload
func QuestionFor(payload QuizPayload) string {
	switch p := payload.(type) {
	case MultipleChoice:
		if p.Question != "" {
			return p.Question
		}
		return DefaultMCQQuestion
	case FillBlank:
		return DefaultFillQuestion
	case LegacyReorder:
		return DefaultReorderQuestion
	default:
		return ""
	}
}

// Quiz represents a quiz item attached to an audio record
type Quiz struct {
	ID        string      `json:"id"`
	AudioID   string      `json:"audioId"`
	Type      QuizType    `json:"type"`
	Question  string      `json:"question,omitempty"`
	Payload   QuizPayload `json:"-"`
	Order     int         `json:"order"`
	CreatedAt time.Time   `json:"createdAt"`
}

type quizAlias Quiz

type quizJSON struct {
	quizAlias
	Data json.RawMessage `json:"dataJson"`
}

// MarshalJSON renders the payload under "dataJson"
func (q Quiz) MarshalJSON() ([]byte, error) {
	data := json.RawMessage("null")
	if q.Payload != nil {
		encoded, err := json.Marshal(q.Payload)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	return json.Marshal(quizJSON{quizAlias: quizAlias(q), Data: data})
}

// UnmarshalJSON decodes "dataJson" into the payload variant named by "type"
func (q *Quiz) UnmarshalJSON(b []byte) error {
	var aux quizJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*q = Quiz(aux.quizAlias)
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}
	payload, err := DecodePayload(q.Type, aux.Data)
	if err != nil {
		return err
	}
	q.Payload = payload
	return nil
}

// CreateQuizRequest creates a quiz item by hand
type CreateQuizRequest struct {
	AudioID  string          `json:"audioId"`
	Type     QuizType        `json:"type"`
	Question *string         `json:"question"`
	Data     json.RawMessage `json:"dataJson"`
	Order    *int            `json:"order"`
}

// UpdateQuizRequest holds a partial update, nil fields are left unchanged
type UpdateQuizRequest struct {
	Question *string         `json:"question"`
	Data     json.RawMessage `json:"dataJson"`
	Order    *int            `json:"order"`
}

// GenerateQuizRequest asks for count new items of one type
type GenerateQuizRequest struct {
	AudioID string   `json:"audioId"`
	Type    QuizType `json:"type"`
	Count   int      `json:"count"`
}

// GenerateBatchRequest replaces all items of a record with freshly generated ones
type GenerateBatchRequest struct {
	AudioID     string `json:"audioId"`
	IncludeMCQ  *bool  `json:"includeMcq"`
	IncludeFill *bool  `json:"includeFill"`
	CountEach   int    `json:"countEach"`
}

// BatchResult lists the items produced by a batch generation
type BatchResult struct {
	MCQ   []Quiz `json:"mcq"`
	Fill  []Quiz `json:"fill"`
	Total int    `json:"totalCount"`
}

// SubmitAnswerRequest carries a learner answer, its shape depends on the quiz type
type SubmitAnswerRequest struct {
	Answer json.RawMessage `json:"answer"`
}

// AnswerResult is the outcome of evaluating an answer
type AnswerResult struct {
	Correct       bool   `json:"correct"`
	Explanation   string `json:"explanation"`
	CorrectAnswer any    `json:"correctAnswer,omitempty"`
}
