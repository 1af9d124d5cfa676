package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// NoBodyMessage is delivered as the only fragment when the model server gives
// back no readable body.
const NoBodyMessage = "Error: no response body received from the model server."

// Envelope is one newline-delimited frame of the chat streaming protocol.
type Envelope struct {
	Model   string         `json:"model,omitempty"`
	Message *EnvelopeDelta `json:"message,omitempty"`
	Done    bool           `json:"done"`
	// Populated by the model server on the terminal frame.
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
	Error           string `json:"error,omitempty"`
}

// EnvelopeDelta carries the incremental content of a frame.
type EnvelopeDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// Result summarises one processed stream.
type Result struct {
	// Done is true when a frame with done=true was observed.
	Done bool
	// NoBody is true when the transport produced no readable body.
	NoBody          bool
	Fragments       int
	Bytes           int
	Malformed       int
	Model           string
	DoneReason      string
	PromptEvalCount int
	EvalCount       int
	TotalDuration   int64
	// UpstreamError holds the last {"error": "..."} frame, if any.
	UpstreamError string
}

// Parser interprets decoded lines as chat-delta envelopes.
//
// A Parser serves exactly one stream and is not safe for concurrent use.
type Parser struct {
	OnContent func(fragment string)
	OnDone    func()

	res      Result
	finished bool
}

// HandleLine processes one line and reports whether the stream is finished.
// Lines that are not valid JSON are skipped.
func (p *Parser) HandleLine(line string) bool {
	if p.finished {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		p.res.Malformed++
		return false
	}
	if env.Message != nil && env.Message.Content != "" {
		p.emit(env.Message.Content)
	}
	if env.Model != "" {
		p.res.Model = env.Model
	}
	if env.Error != "" {
		p.res.UpstreamError = env.Error
	}
	if env.Done {
		p.res.Done = true
		p.res.DoneReason = env.DoneReason
		p.res.PromptEvalCount = env.PromptEvalCount
		p.res.EvalCount = env.EvalCount
		p.res.TotalDuration = env.TotalDuration
		p.Finish()
		return true
	}
	return false
}

// Finish fires OnDone if it has not fired yet.
func (p *Parser) Finish() {
	if p.finished {
		return
	}
	p.finished = true
	if p.OnDone != nil {
		p.OnDone()
	}
}

// Finished reports whether completion has fired.
func (p *Parser) Finished() bool {
	return p.finished
}

// Result returns the statistics collected so far.
func (p *Parser) Result() Result {
	return p.res
}

func (p *Parser) emit(fragment string) {
	p.res.Fragments++
	p.res.Bytes += len(fragment)
	if p.OnContent != nil {
		p.OnContent(fragment)
	}
}

// Run reads newline-delimited envelopes from body, forwarding content to
// onContent as it arrives. onDone fires exactly once: on a done frame, at end
// of input, on a read error or when body is missing. A missing body produces
// the single fragment NoBodyMessage. Read errors are returned after onDone.
func Run(ctx context.Context, body io.Reader, onContent func(string), onDone func()) (Result, error) {
	p := &Parser{OnContent: onContent, OnDone: onDone}
	if body == nil || body == http.NoBody {
		p.res.NoBody = true
		p.emit(NoBodyMessage)
		p.Finish()
		return p.res, nil
	}
	err := ReadLines(ctx, body, func(line string) bool {
		return !p.HandleLine(line)
	})
	p.Finish()
	return p.res, err
}
