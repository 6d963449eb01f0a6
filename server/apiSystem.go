package server

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/scenescan/scenescan/pkg/www"
)

type indexJSON struct {
	Service string `json:"service"`
	Message string `json:"message"`
}

type healthJSON struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// pinger is implemented by detectors that can verify their backend is alive.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) httpIndex(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, indexJSON{
		Service: "scenescan",
		Message: "POST a video to /api/analyze",
	})
}

func (s *Server) httpHealth(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	modelLoaded := true
	if p, ok := s.detector.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.Log.Warnf("Model server health check failed: %v", err)
			modelLoaded = false
		}
	}
	www.SendJSON(w, healthJSON{
		Status:      "healthy",
		ModelLoaded: modelLoaded,
	})
}
