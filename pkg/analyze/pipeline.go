package analyze

// The pipeline orchestrates one video analysis request:
// sample frames -> quality filter -> detect (worker pool) -> aggregate ->
// infer activity. Data flows strictly forward, and nothing here outlives
// the request.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/nn"
	"github.com/scenescan/scenescan/pkg/videox"
)

const (
	DefaultTopClassLimit = 5
	DefaultWorkers       = 4
	DefaultModelTimeout  = 10 * time.Second
	DefaultDecodeTimeout = 30 * time.Second
)

// Options are the tunables of the pipeline. The zero value of any field
// means "use the default".
type Options struct {
	SampleCount   int           // Target number of frames to sample
	MinConfidence float32       // Minimum model confidence. The single most consequential tunable in the system.
	Classes       []string      // Optional class allowlist (empty = all classes)
	MinBrightness float32       // Quality filter band, 0..255
	MaxBrightness float32       //
	TopClassLimit int           // Cap on classes in the response payload
	Workers       int           // Concurrent detection calls per request
	ModelTimeout  time.Duration // Per-frame model call budget
	DecodeTimeout time.Duration // Budget for opening + sampling the video
}

func DefaultOptions() Options {
	return Options{
		SampleCount:   videox.DefaultSampleCount,
		MinConfidence: nn.DefaultMinConfidence,
		MinBrightness: videox.DefaultMinBrightness,
		MaxBrightness: videox.DefaultMaxBrightness,
		TopClassLimit: DefaultTopClassLimit,
		Workers:       DefaultWorkers,
		ModelTimeout:  DefaultModelTimeout,
		DecodeTimeout: DefaultDecodeTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SampleCount <= 0 {
		o.SampleCount = d.SampleCount
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = d.MinConfidence
	}
	if o.MinBrightness <= 0 {
		o.MinBrightness = d.MinBrightness
	}
	if o.MaxBrightness <= 0 {
		o.MaxBrightness = d.MaxBrightness
	}
	if o.TopClassLimit <= 0 {
		o.TopClassLimit = d.TopClassLimit
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = d.ModelTimeout
	}
	if o.DecodeTimeout <= 0 {
		o.DecodeTimeout = d.DecodeTimeout
	}
	return o
}

// Result is the final payload of one analysis request.
type Result struct {
	Detections      []ClassSummary `json:"detections"` // top-K, ordered
	Activity        string         `json:"activity"`
	FramesSampled   int            `json:"frames_sampled"`         // frames decoded by the sampler
	FramesProcessed int            `json:"frames_processed"`       // frames that passed the quality filter
	ModelFailures   int            `json:"model_failures"`         // frames whose model call failed (recoverable)
	TotalDetections int            `json:"total_objects_detected"` // raw detections before the top-K cap
}

// FrameSource is a lazy sequence of sampled frames. Next returns io.EOF when
// exhausted. Close releases the underlying decoding resource and must be
// called on every exit path. videox.FrameReader is the production source.
type FrameSource interface {
	Next() (*videox.Frame, error)
	Close()
}

// Pipeline analyzes videos. One Pipeline serves many requests; all of its
// state is read-only after construction.
type Pipeline struct {
	log      logs.Log
	detector nn.ObjectDetector
	rules    []Rule
	opts     Options
}

func NewPipeline(log logs.Log, detector nn.ObjectDetector, opts Options) *Pipeline {
	return &Pipeline{
		log:      log,
		detector: detector,
		rules:    DefaultRules(),
		opts:     opts.withDefaults(),
	}
}

// AnalyzeVideo runs the full pipeline on a video file.
// An unreadable video surfaces videox.ErrUnreadableVideo; per-frame model
// failures are absorbed into Result.ModelFailures.
// The decode budget starts here, so a slow open counts against it.
func (p *Pipeline) AnalyzeVideo(ctx context.Context, filename string) (*Result, error) {
	decodeDeadline := time.Now().Add(p.opts.DecodeTimeout)
	src, err := videox.NewFrameReader(filename, p.opts.SampleCount)
	if err != nil {
		return nil, err
	}
	return p.analyze(ctx, src, decodeDeadline)
}

// Analyze runs the pipeline over an already-opened frame source.
// The source is closed before Analyze returns, on every path.
func (p *Pipeline) Analyze(ctx context.Context, src FrameSource) (*Result, error) {
	return p.analyze(ctx, src, time.Now().Add(p.opts.DecodeTimeout))
}

func (p *Pipeline) analyze(ctx context.Context, src FrameSource, decodeDeadline time.Time) (*Result, error) {
	defer src.Close()

	frames, sampled, err := p.sampleFrames(ctx, src, decodeDeadline)
	if err != nil {
		return nil, err
	}

	perFrame, failures, err := p.detectFrames(ctx, frames)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, dets := range perFrame {
		total += len(dets)
	}
	summaries := Aggregate(perFrame)
	activity := InferActivity(p.rules, summaries)

	result := &Result{
		Detections:      TopClasses(summaries, p.opts.TopClassLimit),
		Activity:        activity,
		FramesSampled:   sampled,
		FramesProcessed: len(frames),
		ModelFailures:   failures,
		TotalDetections: total,
	}
	p.log.Infof("Analyzed video: %v frames sampled, %v processed, %v detections, activity %q",
		result.FramesSampled, result.FramesProcessed, result.TotalDetections, result.Activity)
	return result, nil
}

// sampleFrames drains the frame source through the quality filter, bounded
// by the decode deadline. The deadline is checked between frames, so a
// single decoder call that never returns cannot be interrupted here.
// Returns the accepted frames and the number of frames the sampler decoded.
func (p *Pipeline) sampleFrames(ctx context.Context, src FrameSource, deadline time.Time) (accepted []*videox.Frame, sampled int, err error) {
	filter := videox.QualityFilter{
		MinBrightness: p.opts.MinBrightness,
		MaxBrightness: p.opts.MaxBrightness,
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if time.Now().After(deadline) {
			return nil, 0, fmt.Errorf("%w: decoding timed out after %v", videox.ErrUnreadableVideo, p.opts.DecodeTimeout)
		}
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		sampled++
		if filter.Accept(frame.Image) {
			accepted = append(accepted, frame)
		}
	}
	return accepted, sampled, nil
}

// detectFrames runs the model on every frame using a fixed-size worker pool.
// Results land in a pre-sized slot array indexed by frame position, so the
// per-frame sequences come back in original frame order regardless of which
// worker finished first. Each slot is written exactly once.
func (p *Pipeline) detectFrames(ctx context.Context, frames []*videox.Frame) (perFrame [][]nn.Detection, failures int, err error) {
	perFrame = make([][]nn.Detection, len(frames))
	if len(frames) == 0 {
		return perFrame, 0, ctx.Err()
	}

	params := &nn.DetectionParams{
		MinConfidence: p.opts.MinConfidence,
		Classes:       p.opts.Classes,
	}
	errs := make([]error, len(frames))
	tasks := make(chan int)
	workers := min(p.opts.Workers, len(frames))

	done := make(chan bool)
	for w := 0; w < workers; w++ {
		go func() {
			for idx := range tasks {
				callCtx, cancel := context.WithTimeout(ctx, p.opts.ModelTimeout)
				dets, err := p.detector.DetectObjects(callCtx, frames[idx].Image, params)
				cancel()
				if err != nil {
					errs[idx] = err
				} else {
					perFrame[idx] = dets
				}
			}
			done <- true
		}()
	}
	for i := range frames {
		select {
		case tasks <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(tasks)
	for w := 0; w < workers; w++ {
		<-done
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	for idx, err := range errs {
		if err == nil {
			continue
		}
		// A failed model call costs us one frame's contribution, not the request.
		failures++
		p.log.Warnf("Detection failed on frame %v (index %v): %v", idx, frames[idx].Index, err)
	}
	return perFrame, failures, nil
}
