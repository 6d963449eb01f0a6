package server

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/scenescan/scenescan/pkg/www"
)

// How many analysis requests we accept per client IP per minute. Video
// analysis is expensive, so this is deliberately low.
const analyzeRequestsPerMinute = 30

func (s *Server) setupRoutes() {
	router := httprouter.New()

	www.Handle(s.Log, router, "GET", "/", s.httpIndex)
	www.Handle(s.Log, router, "GET", "/health", s.httpHealth)
	www.Handle(s.Log, router, "POST", "/api/analyze", s.httpAnalyze)

	// CORS preflight. The service is wide open; auth is the deployment's problem.
	router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
	})

	limiter := httprate.LimitByIP(analyzeRequestsPerMinute, time.Minute)
	s.handler = corsMiddleware(limiter(router))
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		next.ServeHTTP(w, r)
	})
}
