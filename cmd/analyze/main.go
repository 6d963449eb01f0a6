package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/analyze"
	"github.com/scenescan/scenescan/pkg/infer"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("analyze", "Analyze a video file and print the detected activity")
	input := parser.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	modelURL := parser.String("m", "model", &argparse.Options{Help: "Model server URL", Default: "http://127.0.0.1:9090"})
	sampleCount := parser.Int("n", "samples", &argparse.Options{Help: "Number of frames to sample", Default: 0})
	minConfidence := parser.Float("", "confidence", &argparse.Options{Help: "Minimum detection confidence", Default: 0.0})
	classes := parser.String("c", "classes", &argparse.Options{Help: "Comma-separated class allowlist (empty means all)", Default: ""})
	timeoutSec := parser.Int("t", "timeout", &argparse.Options{Help: "Overall analysis timeout in seconds", Default: 300})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	var classList []string
	if *classes != "" {
		classList = strings.Split(*classes, ",")
	}

	// classList is a filter, not the id->label table; it reaches the model
	// calls through the pipeline options.
	detector := infer.NewClient(logger, *modelURL, nil)
	defer detector.Close()

	opts := analyze.DefaultOptions()
	if *sampleCount > 0 {
		opts.SampleCount = *sampleCount
	}
	if *minConfidence > 0 {
		opts.MinConfidence = float32(*minConfidence)
	}
	opts.Classes = classList

	pipeline := analyze.NewPipeline(logger, detector, opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutSec)*time.Second)
	defer cancel()

	result, err := pipeline.AnalyzeVideo(ctx, *input)
	check(err)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(result))
}
