package loopback

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ollama/ollama/api"
)

// ModelName is the only model the loopback server advertises.
const ModelName = "loopback"

// Responder produces the full reply for a conversation.
type Responder func(messages []api.Message) string

// Echo answers with the last user message prefixed by "[loopback] ".
func Echo(messages []api.Message) string {
	if len(messages) == 0 {
		return "[loopback]"
	}
	message := messages[len(messages)-1]
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.ToLower(messages[i].Role) == "user" {
			message = messages[i]
			break
		}
	}
	return "[loopback] " + strings.TrimSpace(message.Content)
}

// Fixed always answers with reply.
func Fixed(reply string) Responder {
	return func([]api.Message) string { return reply }
}

// Server is an in-process stand-in for an Ollama chat server. It streams
// replies as newline-delimited frames, one word per frame.
type Server struct {
	respond Responder
	router  chi.Router
}

// New creates a loopback Server. A nil responder uses Echo.
func New(respond Responder) *Server {
	if respond == nil {
		respond = Echo
	}
	s := &Server{respond: respond}
	r := chi.NewRouter()
	r.Head("/", s.handleHeartbeat)
	r.Get("/", s.handleHeartbeat)
	r.Get("/api/tags", s.handleTags)
	r.Post("/api/chat", s.handleChat)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.ListResponse{Models: []api.ListModelResponse{{
		Name:    ModelName,
		Model:   ModelName,
		Details: api.ModelDetails{Family: ModelName},
	}}})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no messages provided"})
		return
	}
	model := req.Model
	if model == "" {
		model = ModelName
	}

	start := time.Now()
	reply := s.respond(req.Messages)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	fragments := Split(reply)
	for _, frag := range fragments {
		if r.Context().Err() != nil {
			return
		}
		_ = enc.Encode(api.ChatResponse{
			Model:     model,
			CreatedAt: time.Now().UTC(),
			Message:   api.Message{Role: "assistant", Content: frag},
		})
		if flusher != nil {
			flusher.Flush()
		}
	}
	_ = enc.Encode(api.ChatResponse{
		Model:      model,
		CreatedAt:  time.Now().UTC(),
		Message:    api.Message{Role: "assistant"},
		Done:       true,
		DoneReason: "stop",
		Metrics: api.Metrics{
			TotalDuration:   time.Since(start),
			PromptEvalCount: len(req.Messages) * 10,
			EvalCount:       len(fragments),
		},
	})
	if flusher != nil {
		flusher.Flush()
	}
}

// Split cuts reply into word-sized fragments. Joining the fragments yields
// reply unchanged.
func Split(reply string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range reply {
		space := r == ' ' || r == '\n' || r == '\t'
		if i > start && !space && inSpace {
			out = append(out, reply[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(reply) {
		out = append(out, reply[start:])
	}
	return out
}
