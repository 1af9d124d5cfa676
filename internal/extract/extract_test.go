package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestQAPairsKeepsFirstThree(t *testing.T) {
	text := "1. Q: What is X?\nA: X is Y.\n2. Q: Why?\nA: Because.\n3. Q: How?\nA: Like so.\n4. Q: extra?\nA: ignored."
	pairs := QAPairs(text)
	require.Len(t, pairs, 3)
	assert.Equal(t, QAPair{Question: "What is X?", Answer: "X is Y."}, pairs[0])
	assert.Equal(t, QAPair{Question: "Why?", Answer: "Because."}, pairs[1])
	assert.Equal(t, QAPair{Question: "How?", Answer: "Like so."}, pairs[2])
}

func TestQAPairsFewerThanLimit(t *testing.T) {
	pairs := QAPairs("Here you go:\n\n1. Q: First?\nA: One.\n\n2. Q: Second?\nA: Two.\n")
	require.Len(t, pairs, 2)
	assert.Equal(t, "Second?", pairs[1].Question)
	assert.Equal(t, "Two.", pairs[1].Answer)
}

func TestQAPairsEmptyCaptures(t *testing.T) {
	pairs := QAPairs("1. Q: A:\n2. Q: Real?\nA: Yes.")
	require.Len(t, pairs, 2)
	assert.Equal(t, QAPair{}, pairs[0])
}

func TestQAPairsMultilineAnswer(t *testing.T) {
	pairs := QAPairs("1. Q: Explain.\nA: Line one.\nLine two.\n2. Q: Next?\nA: Ok.")
	require.Len(t, pairs, 2)
	assert.Equal(t, "Line one.\nLine two.", pairs[0].Answer)
}

func TestQAPairsNoMatches(t *testing.T) {
	assert.Empty(t, QAPairs("I could not generate questions for this document."))
	assert.Empty(t, QAPairs(""))
}

func TestQAPairsNConfigurableCap(t *testing.T) {
	text := "1. Q: a?\nA: 1\n2. Q: b?\nA: 2\n3. Q: c?\nA: 3\n4. Q: d?\nA: 4"
	assert.Len(t, QAPairsN(text, 4), 4)
	assert.Len(t, QAPairsN(text, 1), 1)
	assert.Len(t, QAPairsN(text, 0), 4)
}

func TestQAPairsPrefersJSON(t *testing.T) {
	text := "Sure!\n```json\n{\"questions\":[{\"question\":\" What is X? \",\"answer\":\"Y\"},{\"question\":\"Why?\",\"answer\":\"Because\"}]}\n```"
	pairs, format := ParseQAPairs(text, DefaultQuestionCount)
	assert.Equal(t, FormatJSON, format)
	require.Len(t, pairs, 2)
	assert.Equal(t, "What is X?", pairs[0].Question)

	pairs, format = ParseQAPairs(`[{"question":"a","answer":"1"},{"question":"b","answer":"2"},{"question":"c","answer":"3"},{"question":"d","answer":"4"}]`, 3)
	assert.Equal(t, FormatJSON, format)
	assert.Len(t, pairs, 3)
}

func TestQAPairsFallsBackWhenJSONUnusable(t *testing.T) {
	text := "1. Q: What does [1, 2] print?\nA: It prints {1 2}."
	pairs, format := ParseQAPairs(text, DefaultQuestionCount)
	assert.Equal(t, FormatLabelled, format)
	require.Len(t, pairs, 1)
	assert.Equal(t, "It prints {1 2}.", pairs[0].Answer)
}

func TestExtractEvaluation(t *testing.T) {
	ev := ExtractEvaluation("Score: 7\nCorrect Answer: Paris \nFeedback: Good but missing detail.")
	assert.Equal(t, Evaluation{Score: intPtr(7), CorrectAnswer: "Paris", Feedback: "Good but missing detail."}, ev)
}

func TestExtractEvaluationMissingScore(t *testing.T) {
	ev := ExtractEvaluation("Correct Answer: Paris\nFeedback: Close.")
	assert.Nil(t, ev.Score)
	assert.Equal(t, "Paris", ev.CorrectAnswer)
	assert.Equal(t, "Close.", ev.Feedback)

	ev = ExtractEvaluation("Score: N/A\nFeedback: nothing to grade")
	assert.Nil(t, ev.Score)
	assert.Empty(t, ev.CorrectAnswer)
	assert.Equal(t, "nothing to grade", ev.Feedback)
}

func TestExtractEvaluationFieldsIndependent(t *testing.T) {
	ev, format := ParseEvaluation("Score: 4/10\nThe answer misses the point.")
	assert.Equal(t, FormatLabelled, format)
	assert.Equal(t, intPtr(4), ev.Score)
	assert.Empty(t, ev.CorrectAnswer)
	assert.Empty(t, ev.Feedback)

	ev, format = ParseEvaluation("no structure at all")
	assert.Equal(t, FormatNone, format)
	assert.Equal(t, Evaluation{}, ev)
}

func TestExtractEvaluationScoreOverflow(t *testing.T) {
	ev := ExtractEvaluation("Score: 99999999999999999999999\nFeedback: ok")
	assert.Nil(t, ev.Score)
	assert.Equal(t, "ok", ev.Feedback)
}

func TestExtractEvaluationJSON(t *testing.T) {
	ev, format := ParseEvaluation(`{"score": "8/10", "correct_answer": "Paris", "feedback": "Nice."}`)
	assert.Equal(t, FormatJSON, format)
	assert.Equal(t, Evaluation{Score: intPtr(8), CorrectAnswer: "Paris", Feedback: "Nice."}, ev)

	ev = ExtractEvaluation("```json\n{\"score\": 6, \"correctAnswer\": \"Rome\", \"feedback\": \"Partly.\"}\n```")
	assert.Equal(t, Evaluation{Score: intPtr(6), CorrectAnswer: "Rome", Feedback: "Partly."}, ev)
}

func TestExtractorsAreIdempotent(t *testing.T) {
	qa := "1. Q: a?\nA: b\n2. Q: c?\nA: d"
	assert.Equal(t, QAPairs(qa), QAPairs(qa))
	grade := "Score: 3\nCorrect Answer: x\nFeedback: y"
	assert.Equal(t, ExtractEvaluation(grade), ExtractEvaluation(grade))
}

func TestEvaluationLabelledReplyQuotingJSON(t *testing.T) {
	ev, format := ParseEvaluation("Score: 8\nCorrect Answer: The endpoint returns {\"score\": 3}\nFeedback: Good.")
	assert.Equal(t, FormatLabelled, format)
	assert.Equal(t, Evaluation{Score: intPtr(8), CorrectAnswer: "The endpoint returns {\"score\": 3}", Feedback: "Good."}, ev)

	text := "Score: 5\nCorrect Answer: It responds with\n```json\n{\"score\": 10, \"correct_answer\": \"everything\", \"feedback\": \"perfect\"}\n```\nFeedback: Partial."
	ev, format = ParseEvaluation(text)
	assert.Equal(t, FormatLabelled, format)
	assert.Equal(t, intPtr(5), ev.Score)
	assert.Contains(t, ev.CorrectAnswer, `"correct_answer": "everything"`)
	assert.Equal(t, "Partial.", ev.Feedback)
}

func TestQAPairsLabelledReplyQuotingJSON(t *testing.T) {
	text := "1. Q: What does /list return?\nA: [{\"question\":\"id\",\"answer\":\"name\"}]\n2. Q: Why?\nA: Because.\n3. Q: How?\nA: So."
	pairs, format := ParseQAPairs(text, DefaultQuestionCount)
	assert.Equal(t, FormatLabelled, format)
	require.Len(t, pairs, 3)
	assert.Equal(t, QAPair{Question: "What does /list return?", Answer: `[{"question":"id","answer":"name"}]`}, pairs[0])
	assert.Equal(t, "How?", pairs[2].Question)
}

func TestQAPairsSkipsNonJSONFences(t *testing.T) {
	text := "Here:\n```text\nnot json\n```\nand\n```json\n[{\"question\":\"a\",\"answer\":\"1\"}]\n```"
	pairs, format := ParseQAPairs(text, DefaultQuestionCount)
	assert.Equal(t, FormatJSON, format)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].Question)
}

func TestExtractEvaluationScoreMustStartLine(t *testing.T) {
	ev, format := ParseEvaluation("Correct Answer: x\nFeedback: A Score: 9 would be too generous.")
	assert.Equal(t, FormatLabelled, format)
	assert.Nil(t, ev.Score)
	assert.Equal(t, "x", ev.CorrectAnswer)
	assert.Equal(t, "A Score: 9 would be too generous.", ev.Feedback)

	ev = ExtractEvaluation("Here is my grade.\n  Score: 6\nFeedback: fine")
	assert.Equal(t, intPtr(6), ev.Score)
}

func TestExtractEvaluationJSONScoreNotWhole(t *testing.T) {
	for _, raw := range []string{`1e30`, `-1e30`, `7.9`} {
		ev, format := ParseEvaluation(`{"score": ` + raw + `, "feedback": "x"}`)
		assert.Equal(t, FormatJSON, format, raw)
		assert.Nil(t, ev.Score, raw)
		assert.Equal(t, "x", ev.Feedback, raw)
	}
	ev := ExtractEvaluation(`{"score": 7.0}`)
	assert.Equal(t, intPtr(7), ev.Score)
}
