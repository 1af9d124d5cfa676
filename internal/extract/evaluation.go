package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	scorePattern         = regexp.MustCompile(`(?m)^\s*Score:\s*(\d+)`)
	correctAnswerPattern = regexp.MustCompile(`(?s)Correct Answer:\s*(.*?)\s*Feedback:`)
	feedbackPattern      = regexp.MustCompile(`(?s)Feedback:\s*(.*)`)
)

// ExtractEvaluation parses a grading reply. Each field is extracted
// independently; a field that cannot be found is left empty (Score nil).
func ExtractEvaluation(text string) Evaluation {
	ev, _ := ParseEvaluation(text)
	return ev
}

// ParseEvaluation is ExtractEvaluation that also reports which convention matched.
func ParseEvaluation(text string) (Evaluation, Format) {
	if body, ok := leadingJSON(text); ok {
		if ev, ok := jsonEvaluation(body); ok {
			return ev, FormatJSON
		}
	}
	if ev, ok := labelledEvaluation(text); ok {
		return ev, FormatLabelled
	}
	if body, ok := fencedJSON(text); ok {
		if ev, ok := jsonEvaluation(body); ok {
			return ev, FormatJSON
		}
	}
	return Evaluation{}, FormatNone
}

func labelledEvaluation(text string) (Evaluation, bool) {
	ev := Evaluation{}
	if m := scorePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ev.Score = &n
		}
	}
	if m := correctAnswerPattern.FindStringSubmatch(text); m != nil {
		ev.CorrectAnswer = strings.TrimSpace(m[1])
	}
	if m := feedbackPattern.FindStringSubmatch(text); m != nil {
		ev.Feedback = strings.TrimSpace(m[1])
	}
	return ev, ev.Score != nil || ev.CorrectAnswer != "" || ev.Feedback != ""
}

type jsonGrade struct {
	Score         json.RawMessage `json:"score"`
	CorrectAnswer string          `json:"correct_answer"`
	CorrectCamel  string          `json:"correctAnswer"`
	Feedback      string          `json:"feedback"`
}

func jsonEvaluation(body string) (Evaluation, bool) {
	var g jsonGrade
	if !decodeJSON(body, &g) {
		return Evaluation{}, false
	}
	ev := Evaluation{
		Score:         jsonScore(g.Score),
		CorrectAnswer: strings.TrimSpace(g.CorrectAnswer),
		Feedback:      strings.TrimSpace(g.Feedback),
	}
	if ev.CorrectAnswer == "" {
		ev.CorrectAnswer = strings.TrimSpace(g.CorrectCamel)
	}
	if ev.Score == nil && ev.CorrectAnswer == "" && ev.Feedback == "" {
		return Evaluation{}, false
	}
	return ev, true
}

// jsonScore accepts 7, 7.0 and "7/10". Fractions and values outside the int
// range yield nil.
func jsonScore(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil
		}
		n := int(f)
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	digits := s
	if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = s[:i]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}
