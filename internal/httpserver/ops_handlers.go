package httpserver

import (
	"net/http"

	"github.com/tokligence/docchat/internal/metrics"
	"github.com/tokligence/docchat/internal/modelclient"
	"github.com/tokligence/docchat/internal/stream"
	"github.com/tokligence/docchat/internal/version"
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.metrics.GetSnapshot())
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.metrics.GetSnapshot())))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.model.Models(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	if models == nil {
		models = []modelclient.ModelInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"default": s.model.Model(),
		"models":  models,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Docchat-Version", version.Info())
	s.respondJSON(w, http.StatusOK, version.Current())
}

func statsOf(res stream.Result) metrics.StreamStats {
	return metrics.StreamStats{
		Fragments:       res.Fragments,
		Bytes:           res.Bytes,
		Malformed:       res.Malformed,
		Done:            res.Done,
		NoBody:          res.NoBody,
		PromptEvalCount: res.PromptEvalCount,
		EvalCount:       res.EvalCount,
	}
}
