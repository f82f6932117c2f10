package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/models"
)

// Evaluate checks a learner answer against a quiz item.
// Answers of the wrong JSON shape are graded as incorrect rather than rejected.
// The correct answer is only revealed when the submitted one is wrong.
func Evaluate(quiz *models.Quiz, answer json.RawMessage) (*models.AnswerResult, error) {
	answer = bytes.TrimSpace(answer)
	if len(answer) == 0 || bytes.Equal(answer, []byte("null")) {
		return nil, apperrors.Validation("answer is required")
	}

	var (
		correct       bool
		explanation   string
		correctAnswer any
	)

	switch p := quiz.Payload.(type) {
	case models.MultipleChoice:
		var index float64
		correct = json.Unmarshal(answer, &index) == nil && index == float64(p.CorrectIndex)
		explanation = p.Explanation
		correctAnswer = p.CorrectIndex
	case models.FillBlank:
		var word string
		correct = json.Unmarshal(answer, &word) == nil && word == p.BlankWord
		explanation = p.Hint
		correctAnswer = p.BlankWord
	case models.LegacyReorder:
		var order []float64
		correct = json.Unmarshal(answer, &order) == nil && sameOrder(order, p.CorrectOrder)
		explanation = "正解: " + p.OriginalSentence
		correctAnswer = p.CorrectOrder
	default:
		return nil, fmt.Errorf("quiz %s has no evaluable payload", quiz.ID)
	}

	result := &models.AnswerResult{
		Correct:     correct,
		Explanation: explanation,
	}
	if !correct {
		result.CorrectAnswer = correctAnswer
	}
	return result, nil
}

func sameOrder(got []float64, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != float64(want[i]) {
			return false
		}
	}
	return true
}
