package resolver

import (
	"fmt"

	"github.com/bbiangul/longdoc/structured"
)

// sectionMarker separates partial answers while their joint size is
// measured.
const sectionMarker = "[SEP]"

const (
	answerShape   = `{"Answer":"","Explanation":"","Text Excerpt":""}`
	finalShape    = `{"Final Answer":"","Final Explanation":""}`
	summaryShape  = `{"Title":"","Summary":""}`
	finalSumShape = `{"Title":"","Final Summary":""}`
)

func answerInstruction(question string) string {
	return fmt.Sprintf(`Prompt: Please answer the question: %s, briefly and precisely.
Include a brief explanation of why you came to your answer and quote the relevant text excerpt from the context.
Do not include the question itself in your answer.
Your answer MUST be in the SAME LANGUAGE as the question you are answering.
Use ONLY the given text as context for your answer.
If you cannot answer the question based on the textual content, you MUST answer '%s'.
If you can answer the question based on the text content, follow this JSON structure for your answer: %s.
`, question, structured.NoAnswer, answerShape)
}

func finalizeAnswerInstruction(question string) string {
	return fmt.Sprintf(`Prompt: Analyse carefully the provided answers, which all respond to this question: %s.
Understand which information in the provided answers is useful to answer the question, and extract it to return the best possible answer. Explain your answer in a short summary.
It is very important that you respond in the same language as the question.
Follow this JSON structure for your answer: %s.
`, question, finalShape)
}

func summaryInstruction() string {
	return fmt.Sprintf(`Prompt: Understand and analyse the text carefully. Extract the information which is most important and use it to summarize the text. It is very important that you use the same language as the text. Follow this JSON structure for your answer: %s.`, summaryShape)
}

func finalizeSummaryInstruction(title string) string {
	return fmt.Sprintf(`Prompt: Analyse carefully the text summaries, each summarizing a single section of one large text with the title: %s. Understand which information is important and most relevant in each summary. Then validate the extracted information carefully and generate one final summary for the original text. It is absolutely important that you use the same language as the title of the original text and that you follow this JSON structure for your answer: %s.`, title, finalSumShape)
}
