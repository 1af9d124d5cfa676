package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ollama/ollama/api"

	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/hooks"
	"github.com/tokligence/docchat/internal/modelclient"
	"github.com/tokligence/docchat/internal/session"
	"github.com/tokligence/docchat/internal/store"
	"github.com/tokligence/docchat/internal/stream"
)

// Operations, used as metric labels and in logs.
const (
	opSummary   = "summary"
	opAsk       = "ask"
	opChallenge = "challenge"
	opEvaluate  = "evaluate"
)

var (
	errBusy        = errors.New("a model call is already running for this document")
	errNoQuestions = errors.New("no questions could be extracted from the model reply")
)

type askRequest struct {
	Question string `json:"question"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// doneFrame closes a streamed response. Fragments before it use the same
// envelope as the model server so clients can share one decoder.
type doneFrame struct {
	Done       bool                `json:"done"`
	Model      string              `json:"model,omitempty"`
	DoneReason string              `json:"done_reason,omitempty"`
	Summary    string              `json:"summary,omitempty"`
	Answer     string              `json:"answer,omitempty"`
	QAPairs    []extract.QAPair    `json:"qa_pairs,omitempty"`
	Question   int                 `json:"question,omitempty"`
	Evaluation *extract.Evaluation `json:"evaluation,omitempty"`
	Format     extract.Format      `json:"format,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// modelCall is one streamed generation for a document.
type modelCall struct {
	operation string
	docID     string
	request   modelclient.Request
	// event is emitted after a successful closing frame.
	event hooks.EventType
	// finish persists the complete reply and fills the closing frame. It is
	// skipped when the stream failed.
	finish func(ctx context.Context, reply string, frame *doneFrame) error
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	prompt, err := s.prompts.Summary(doc.Text)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !s.acquire(w, doc.ID) {
		return
	}
	defer s.sessions.Release(doc.ID)

	s.streamCall(w, r, modelCall{
		operation: opSummary,
		docID:     doc.ID,
		event:     hooks.EventSummaryReady,
		request:   modelclient.Request{Prompt: prompt},
		finish: func(ctx context.Context, reply string, frame *doneFrame) error {
			summary := strings.TrimSpace(reply)
			if err := s.store.SetSummary(ctx, doc.ID, summary); err != nil {
				return err
			}
			if err := s.appendMessage(ctx, doc.ID, store.SenderAI, summary); err != nil {
				return err
			}
			s.sessions.Update(doc.ID, func(st session.State) session.State { return st.WithSummary() })
			frame.Summary = summary
			return nil
		},
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("question is required"))
		return
	}
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	prompt, err := s.prompts.Ask(doc.Text, question)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !s.acquire(w, doc.ID) {
		return
	}
	defer s.sessions.Release(doc.ID)

	history, err := s.history(r.Context(), doc.ID)
	if err != nil {
		s.respondError(w, storeStatus(err), err)
		return
	}
	if err := s.appendMessage(r.Context(), doc.ID, store.SenderUser, question); err != nil {
		s.respondError(w, storeStatus(err), err)
		return
	}
	s.sessions.Update(doc.ID, func(st session.State) session.State { return st.WithMode(session.ModeAsk) })

	s.streamCall(w, r, modelCall{
		operation: opAsk,
		docID:     doc.ID,
		event:     hooks.EventQuestionAnswered,
		request:   modelclient.Request{History: history, Prompt: prompt},
		finish: func(ctx context.Context, reply string, frame *doneFrame) error {
			answer := strings.TrimSpace(reply)
			if err := s.appendMessage(ctx, doc.ID, store.SenderAI, answer); err != nil {
				return err
			}
			frame.Answer = answer
			return nil
		},
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	prompt, err := s.prompts.Challenge(doc.Text, s.challengeCount)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !s.acquire(w, doc.ID) {
		return
	}
	defer s.sessions.Release(doc.ID)

	s.streamCall(w, r, modelCall{
		operation: opChallenge,
		docID:     doc.ID,
		event:     hooks.EventChallengeIssued,
		request:   modelclient.Request{Prompt: prompt},
		finish: func(ctx context.Context, reply string, frame *doneFrame) error {
			pairs, format := extract.ParseQAPairs(reply, s.challengeCount)
			s.metrics.RecordExtraction("qa", string(format))
			frame.Format = format
			if len(pairs) == 0 {
				return errNoQuestions
			}
			if err := s.store.SetChallenge(ctx, doc.ID, pairs); err != nil {
				return err
			}
			if err := s.appendMessage(ctx, doc.ID, store.SenderAI, strings.TrimSpace(reply)); err != nil {
				return err
			}
			s.sessions.Update(doc.ID, func(st session.State) session.State { return st.WithChallenge(pairs) })
			frame.QAPairs = pairs
			return nil
		},
	})
}

// handleAnswer grades the user's answer to challenge question {n}, counted
// from 1.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid question number %q", chi.URLParam(r, "n")))
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("answer is required"))
		return
	}
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if n > len(doc.Challenge) {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("challenge question %d not found", n))
		return
	}
	pair := doc.Challenge[n-1]
	prompt, err := s.prompts.Evaluate(doc.Text, pair.Question, pair.Answer, answer)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !s.acquire(w, doc.ID) {
		return
	}
	defer s.sessions.Release(doc.ID)

	if err := s.appendMessage(r.Context(), doc.ID, store.SenderUser, answer); err != nil {
		s.respondError(w, storeStatus(err), err)
		return
	}

	s.streamCall(w, r, modelCall{
		operation: opEvaluate,
		docID:     doc.ID,
		event:     hooks.EventAnswerEvaluated,
		request:   modelclient.Request{Prompt: prompt},
		finish: func(ctx context.Context, reply string, frame *doneFrame) error {
			eval, format := extract.ParseEvaluation(reply)
			s.metrics.RecordExtraction("evaluation", string(format))
			frame.Format = format

			// Reload so a challenge regenerated meanwhile is not overwritten
			// with stale pairs.
			current, err := s.store.GetDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			if n > len(current.Challenge) || current.Challenge[n-1].Question != pair.Question {
				return fmt.Errorf("challenge question %d changed while grading", n)
			}
			current.Challenge[n-1].UserAnswer = answer
			current.Challenge[n-1].Evaluation = &eval
			if err := s.store.SetChallenge(ctx, doc.ID, current.Challenge); err != nil {
				return err
			}
			if err := s.appendMessage(ctx, doc.ID, store.SenderAI, strings.TrimSpace(reply)); err != nil {
				return err
			}
			s.sessions.Update(doc.ID, func(st session.State) session.State {
				if len(st.Challenge) != len(current.Challenge) {
					st = st.WithChallenge(current.Challenge)
				}
				return st.WithEvaluation(n-1, answer, &eval)
			})
			frame.Question = n
			frame.Evaluation = &eval
			return nil
		},
	})
}

// acquire claims the busy flag of a document, answering 409 when another
// call holds it.
func (s *Server) acquire(w http.ResponseWriter, docID string) bool {
	if s.sessions.TryAcquire(docID) {
		return true
	}
	s.respondError(w, http.StatusConflict, errBusy)
	return false
}

func (s *Server) appendMessage(ctx context.Context, docID string, sender store.Sender, text string) error {
	return s.store.AppendMessage(ctx, store.Message{DocumentID: docID, Sender: sender, Text: text})
}

// history loads the stored chat turns sent along with an ask.
func (s *Server) history(ctx context.Context, docID string) ([]api.Message, error) {
	if s.historyTurns < 0 {
		return nil, nil
	}
	msgs, err := s.store.ListMessages(ctx, docID, s.historyTurns)
	if err != nil {
		return nil, err
	}
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		role := modelclient.RoleUser
		if m.Sender == store.SenderAI {
			role = modelclient.RoleAssistant
		}
		out = append(out, api.Message{Role: role, Content: m.Text})
	}
	return out, nil
}

// streamCall relays a model stream to the client as NDJSON and closes it with
// a doneFrame. Errors before the first fragment are answered with a plain
// JSON error; later ones go into the closing frame.
func (s *Server) streamCall(w http.ResponseWriter, r *http.Request, call modelCall) {
	ctx := r.Context()
	start := time.Now()
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	var (
		reply    stream.Accumulator
		writeErr error
	)
	onContent := func(fragment string) {
		reply.Append(fragment)
		if writeErr != nil {
			return
		}
		begin()
		writeErr = enc.Encode(stream.Envelope{
			Message: &stream.EnvelopeDelta{Role: modelclient.RoleAssistant, Content: fragment},
		})
		if flusher != nil {
			flusher.Flush()
		}
	}

	res, err := s.model.Stream(ctx, call.request, onContent)
	s.metrics.RecordModelCall(call.operation, time.Since(start), statsOf(res), err)
	if err != nil {
		s.logger.Warnf("%s %s: model stream failed: %v", call.operation, call.docID, err)
		if !started {
			s.respondError(w, modelStatus(err), err)
			return
		}
		s.writeFrame(enc, flusher, doneFrame{Done: true, Error: err.Error()})
		return
	}
	if writeErr != nil {
		s.logger.Debugf("%s %s: client went away: %v", call.operation, call.docID, writeErr)
	}

	frame := doneFrame{Done: true, Model: res.Model, DoneReason: res.DoneReason}
	switch {
	case res.NoBody:
		frame.Error = stream.NoBodyMessage
	case res.UpstreamError != "":
		frame.Error = res.UpstreamError
	default:
		// The reply is complete; keep it even if the client disconnected.
		if ferr := call.finish(context.WithoutCancel(ctx), reply.String(), &frame); ferr != nil {
			s.logger.Errorf("%s %s: %v", call.operation, call.docID, ferr)
			frame.Error = ferr.Error()
		}
	}
	s.logger.Debugf("%s %s: %d fragments, %d bytes, done=%t in %s",
		call.operation, call.docID, res.Fragments, res.Bytes, res.Done, time.Since(start))
	begin()
	s.writeFrame(enc, flusher, frame)
	if frame.Error == "" {
		s.emit(ctx, call.event, call.docID, eventMetadata(call.operation, frame))
	}
}

func eventMetadata(operation string, frame doneFrame) map[string]any {
	meta := map[string]any{"operation": operation, "model": frame.Model}
	if len(frame.QAPairs) > 0 {
		meta["questions"] = len(frame.QAPairs)
	}
	if frame.Evaluation != nil {
		meta["question"] = frame.Question
		if frame.Evaluation.Score != nil {
			meta["score"] = *frame.Evaluation.Score
		}
	}
	return meta
}

func (s *Server) writeFrame(enc *json.Encoder, flusher http.Flusher, frame doneFrame) {
	if err := enc.Encode(frame); err != nil {
		s.logger.Debugf("write closing frame: %v", err)
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// modelStatus maps a failed model call to an HTTP status.
func modelStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
