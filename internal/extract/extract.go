// Package extract pulls structured challenge questions and grading results out
// of free-form model output.
//
// Both extractors are pure: the same input always yields the same output and
// missing fields degrade to empty values instead of errors. A reply that is
// JSON as a whole (bare or in a leading fence) is decoded as JSON; otherwise
// the labelled text conventions are used, and a fenced JSON block elsewhere in
// the reply is only consulted when they find nothing:
//
//	1. Q: <question>
//	A: <answer>
//
//	Score: <0-10>
//	Correct Answer: <text>
//	Feedback: <text>
package extract

import (
	"encoding/json"
	"strings"
)

// DefaultQuestionCount is how many challenge questions are kept per generation.
const DefaultQuestionCount = 3

// Format names the convention a reply was parsed with.
type Format string

const (
	FormatNone     Format = ""
	FormatJSON     Format = "json"
	FormatLabelled Format = "labelled"
)

// Evaluation is the graded result of one user answer. A nil Score means the
// score could not be extracted; it is not a zero.
type Evaluation struct {
	Score         *int   `json:"score"`
	CorrectAnswer string `json:"correct_answer"`
	Feedback      string `json:"feedback"`
}

// QAPair is one generated challenge question with its reference answer.
// UserAnswer and Evaluation are filled in once the user responds.
type QAPair struct {
	Question   string      `json:"question"`
	Answer     string      `json:"answer"`
	UserAnswer string      `json:"user_answer"`
	Evaluation *Evaluation `json:"evaluation"`
}

// leadingJSON returns the reply body when the whole reply is JSON-shaped: the
// trimmed text, or the body of a fence it opens with, starts with '{' or '['.
func leadingJSON(text string) (string, bool) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		fenced, _, ok := fenceBody(body)
		if !ok {
			return "", false
		}
		body = fenced
	}
	return body, isJSONShaped(body)
}

// fencedJSON returns the first fenced block anywhere in text whose body is
// JSON-shaped. Only used once the labelled conventions found nothing.
func fencedJSON(text string) (string, bool) {
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			return "", false
		}
		body, rest, ok := fenceBody(text[start:])
		if !ok {
			return "", false
		}
		if isJSONShaped(body) {
			return body, true
		}
		text = rest
	}
}

// fenceBody splits text, which starts with an opening fence line, into the
// trimmed block body and whatever follows the closing fence.
func fenceBody(text string) (body, rest string, ok bool) {
	after := strings.TrimPrefix(text, "```")
	nl := strings.IndexByte(after, '\n')
	if nl < 0 {
		return "", "", false
	}
	after = after[nl+1:]
	end := strings.Index(after, "```")
	if end < 0 {
		return "", "", false
	}
	return strings.TrimSpace(after[:end]), after[end+3:], true
}

func isJSONShaped(body string) bool {
	return strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[")
}

// decodeJSON decodes the first JSON value of body into v.
func decodeJSON(body string, v any) bool {
	dec := json.NewDecoder(strings.NewReader(body))
	return dec.Decode(v) == nil
}
