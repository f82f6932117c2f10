package services

import (
	"encoding/json"
	"testing"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	mcq := &models.Quiz{
		ID:   "quiz-mcq",
		Type: models.QuizTypeMCQ,
		Payload: models.MultipleChoice{
			Question:     "どこへ行きますか？",
			Options:      []string{"駅", "学校", "病院", "銀行"},
			CorrectIndex: 2,
			Explanation:  "病院へ行くと言っています",
		},
	}
	fill := &models.Quiz{
		ID:   "quiz-fill",
		Type: models.QuizTypeFill,
		Payload: models.FillBlank{
			Sentence:  "駅まで＿＿＿で行きます",
			BlankWord: "バス",
			Options:   []string{"バス", "電車", "車"},
			Hint:      "乗り物",
		},
	}
	reorder := &models.Quiz{
		ID:   "quiz-reorder",
		Type: models.QuizTypeReorder,
		Payload: models.LegacyReorder{
			OriginalSentence: "私は学生です",
			Segments:         []string{"学生", "私は", "です"},
			CorrectOrder:     []int{1, 0, 2},
		},
	}

	tests := []struct {
		name          string
		quiz          *models.Quiz
		answer        string
		expected      *models.AnswerResult
		expectedError bool
	}{
		{
			name:     "mcq correct",
			quiz:     mcq,
			answer:   `2`,
			expected: &models.AnswerResult{Correct: true, Explanation: "病院へ行くと言っています"},
		},
		{
			name:     "mcq wrong reveals index",
			quiz:     mcq,
			answer:   `0`,
			expected: &models.AnswerResult{Correct: false, Explanation: "病院へ行くと言っています", CorrectAnswer: 2},
		},
		{
			name:     "mcq answer given as string is wrong",
			quiz:     mcq,
			answer:   `"2"`,
			expected: &models.AnswerResult{Correct: false, Explanation: "病院へ行くと言っています", CorrectAnswer: 2},
		},
		{
			name:     "fill correct",
			quiz:     fill,
			answer:   `"バス"`,
			expected: &models.AnswerResult{Correct: true, Explanation: "乗り物"},
		},
		{
			name:     "fill wrong reveals word",
			quiz:     fill,
			answer:   `"電車"`,
			expected: &models.AnswerResult{Correct: false, Explanation: "乗り物", CorrectAnswer: "バス"},
		},
		{
			name:     "fill compares exactly",
			quiz:     fill,
			answer:   `" バス"`,
			expected: &models.AnswerResult{Correct: false, Explanation: "乗り物", CorrectAnswer: "バス"},
		},
		{
			name:     "reorder correct",
			quiz:     reorder,
			answer:   `[1,0,2]`,
			expected: &models.AnswerResult{Correct: true, Explanation: "正解: 私は学生です"},
		},
		{
			name:     "reorder wrong order",
			quiz:     reorder,
			answer:   `[0,1,2]`,
			expected: &models.AnswerResult{Correct: false, Explanation: "正解: 私は学生です", CorrectAnswer: []int{1, 0, 2}},
		},
		{
			name:     "reorder wrong length",
			quiz:     reorder,
			answer:   `[1,0]`,
			expected: &models.AnswerResult{Correct: false, Explanation: "正解: 私は学生です", CorrectAnswer: []int{1, 0, 2}},
		},
		{
			name:          "missing answer",
			quiz:          mcq,
			answer:        ``,
			expectedError: true,
		},
		{
			name:          "null answer",
			quiz:          fill,
			answer:        `null`,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(tt.quiz, json.RawMessage(tt.answer))

			if tt.expectedError {
				assert.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_NoPayload(t *testing.T) {
	result, err := Evaluate(&models.Quiz{ID: "broken", Type: models.QuizTypeMCQ}, json.RawMessage(`1`))

	assert.Error(t, err)
	assert.False(t, apperrors.IsValidation(err))
	assert.Nil(t, result)
}
