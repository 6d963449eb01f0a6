package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/infer"
	"github.com/scenescan/scenescan/server"
	"github.com/scenescan/scenescan/server/config"
)

func main() {
	parser := argparse.NewParser("scenescan", "Video activity analysis service")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: ""})
	port := parser.Int("p", "port", &argparse.Options{Help: "Override the HTTP listen port", Default: 0})
	modelURL := parser.String("m", "model", &argparse.Options{Help: "Override the model server URL", Default: ""})
	skipPing := parser.Flag("", "skip-ping", &argparse.Options{Help: "Start even if the model server is unreachable", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *modelURL != "" {
		cfg.Model.URL = *modelURL
	}

	// The class allowlist is applied per detection call (DetectionParams);
	// the client itself uses the COCO id->label table.
	detector := infer.NewClient(logger, cfg.Model.URL, nil)
	defer detector.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = detector.Ping(ctx)
	cancel()
	if err != nil {
		if *skipPing {
			logger.Warnf("Model server at %v is not responding: %v. Continuing anyway", cfg.Model.URL, err)
		} else {
			logger.Errorf("Model server at %v is not responding: %v", cfg.Model.URL, err)
			os.Exit(1)
		}
	} else {
		logger.Infof("Model server at %v is ready", cfg.Model.URL)
	}

	srv := server.NewServer(logger, cfg, detector)
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(srv.PortString()); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		os.Exit(1)
	}
}
