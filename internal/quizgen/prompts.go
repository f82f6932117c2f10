package quizgen

import (
	"fmt"

	"github.com/japanesestudent/listening-service/internal/models"
)

const systemPrompt = "あなたはJLPT N2/N3レベルの日本語リスニングクイズ作成者です。JSONのみを出力してください。"

const mcqPrompt = `以下のトランスクリプトから、選択式クイズを1問作成してください。

【トランスクリプト】
%s

【出力形式】JSON
{
  "question": "質問文（日本語）",
  "options": ["選択肢1", "選択肢2", "選択肢3", "選択肢4"],
  "correctIndex": 0,
  "explanation": "正解の理由（日本語）"
}

【注意】
- N2/N3レベルの語彙・文法を使用
- 音声を聞いて答えられる内容質問
- 紛らわしい選択肢を含める`

const fillPrompt = `以下のトランスクリプトから、穴埋めクイズを1問作成してください。

【トランスクリプト】
%s

【出力形式】JSON
{
  "sentence": "＿＿＿を含む文",
  "blankWord": "正解の単語",
  "options": ["正解", "誤答1", "誤答2"],
  "hint": "ヒント（任意）"
}
【注意】
- 空欄は＿＿＿を1つだけ使う
- optionsに必ずblankWordを含める
`

// buildPrompt embeds the transcript verbatim into the prompt for kind
func buildPrompt(transcript string, kind models.QuizType) (string, error) {
	switch kind {
	case models.QuizTypeMCQ:
		return fmt.Sprintf(mcqPrompt, transcript), nil
	case models.QuizTypeFill:
		return fmt.Sprintf(fillPrompt, transcript), nil
	default:
		return "", fmt.Errorf("quiz type %q cannot be generated", kind)
	}
}
