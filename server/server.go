package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/analyze"
	"github.com/scenescan/scenescan/pkg/nn"
	"github.com/scenescan/scenescan/server/config"
)

// Server is the HTTP front of the analysis pipeline. One process, one
// detector connection, many concurrent requests.
type Server struct {
	Log      logs.Log
	Config   *config.Config
	detector nn.ObjectDetector
	pipeline *analyze.Pipeline
	handler  http.Handler
	httpSrv  *http.Server
}

func NewServer(log logs.Log, cfg *config.Config, detector nn.ObjectDetector) *Server {
	s := &Server{
		Log:      log,
		Config:   cfg,
		detector: detector,
		pipeline: analyze.NewPipeline(log, detector, cfg.PipelineOptions()),
	}
	s.setupRoutes()
	return s
}

// ListenHTTP blocks until the server shuts down.
// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.httpSrv = &http.Server{
		Addr:    port,
		Handler: s.handler,
	}
	s.Log.Infof("Listening on %v", port)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ListenForKillSignals starts a goroutine that shuts the server down
// gracefully on SIGINT/SIGTERM.
func (s *Server) ListenForKillSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		s.Log.Infof("Received signal %v. Shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if s.httpSrv != nil {
			s.httpSrv.Shutdown(ctx)
		}
	}()
}

// tempPath returns the directory where uploads are spilled.
func (s *Server) tempPath() string {
	if s.Config.TempPath != "" {
		return s.Config.TempPath
	}
	return os.TempDir()
}

// PortString formats the configured port for ListenHTTP.
func (s *Server) PortString() string {
	return fmt.Sprintf(":%v", s.Config.Port)
}
