package prompts

var labelledTemplates = map[Kind]string{
	KindSummary: `
You are a helpful assistant. Summarize the following document in no more than 150 words.
Focus on the main ideas and key findings.

Document:
{{.Document}}
`,
	KindAsk: `
You are a helpful assistant answering questions about a document.
Answer using only the information in the document. If the document does not
contain the answer, say so. Mention the part of the document that supports your answer.

Document:
{{.Document}}

Question: {{.Question}}
`,
	KindChallenge: `
Read the following document and write {{.Count}} questions that test comprehension and
reasoning about it. Give a short reference answer for each question.

Use exactly this format and nothing else:
1. Q: <question>
A: <answer>
2. Q: <question>
A: <answer>

Document:
{{.Document}}
`,
	KindEvaluate: `
You are grading a student's answer to a question about a document.

Document:
{{.Document}}

Question: {{.Question}}
Reference answer: {{.ReferenceAnswer}}
Student answer: {{.UserAnswer}}

Reply in exactly this format:
Score: <integer from 0 to 10>
Correct Answer: <the correct answer>
Feedback: <one or two sentences of feedback>
`,
}

var structuredTemplates = map[Kind]string{
	KindSummary: labelledTemplates[KindSummary],
	KindAsk:     labelledTemplates[KindAsk],
	KindChallenge: `
Read the following document and write {{.Count}} questions that test comprehension and
reasoning about it. Give a short reference answer for each question.

Reply with JSON only, no markdown, in this shape:
{"questions": [{"question": "...", "answer": "..."}]}

Document:
{{.Document}}
`,
	KindEvaluate: `
You are grading a student's answer to a question about a document.

Document:
{{.Document}}

Question: {{.Question}}
Reference answer: {{.ReferenceAnswer}}
Student answer: {{.UserAnswer}}

Reply with JSON only, no markdown, in this shape:
{"score": <integer from 0 to 10>, "correct_answer": "...", "feedback": "..."}
`,
}
