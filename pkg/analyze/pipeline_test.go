package analyze

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/scenescan/scenescan/pkg/nn"
	"github.com/scenescan/scenescan/pkg/videox"
	"github.com/stretchr/testify/require"
)

// testFrame returns a frame whose mean brightness is exactly v.
func testFrame(index int, v byte) *videox.Frame {
	img := cimg.NewImage(16, 16, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = v
	}
	return &videox.Frame{Image: img, Index: index}
}

type fakeSource struct {
	frames []*videox.Frame
	next   int
	closed int
}

func (s *fakeSource) Next() (*videox.Frame, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *fakeSource) Close() {
	s.closed++
}

// scriptedDetector returns canned detections per frame image, and can be told
// to fail on specific images.
type scriptedDetector struct {
	mu     sync.Mutex
	byImg  map[*cimg.Image][]nn.Detection
	failOn map[*cimg.Image]bool
	calls  int
}

func (d *scriptedDetector) Close() {}

func (d *scriptedDetector) DetectObjects(ctx context.Context, img *cimg.Image, params *nn.DetectionParams) ([]nn.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failOn[img] {
		return nil, nn.ModelErrorf("scripted failure")
	}
	return d.byImg[img], nil
}

func newTestPipeline(t *testing.T, detector nn.ObjectDetector) *Pipeline {
	return NewPipeline(logs.NewTestingLog(t), detector, DefaultOptions())
}

func TestPipelineEndToEnd(t *testing.T) {
	frames := []*videox.Frame{
		testFrame(0, 100), testFrame(50, 110), testFrame(100, 120), testFrame(150, 130),
	}
	detector := &scriptedDetector{
		byImg: map[*cimg.Image][]nn.Detection{
			frames[0].Image: {{Class: "person", Confidence: 0.9}},
			frames[1].Image: {{Class: "person", Confidence: 0.8}},
			frames[2].Image: {{Class: "person", Confidence: 0.7}, {Class: "dog", Confidence: 0.6}},
			frames[3].Image: {},
		},
	}
	p := newTestPipeline(t, detector)
	src := &fakeSource{frames: frames}

	result, err := p.Analyze(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, src.closed)

	require.Equal(t, 4, result.FramesSampled)
	require.Equal(t, 4, result.FramesProcessed)
	require.Equal(t, 0, result.ModelFailures)
	require.Equal(t, 4, result.TotalDetections)

	require.Len(t, result.Detections, 2)
	require.Equal(t, "person", result.Detections[0].Class)
	require.Equal(t, 3, result.Detections[0].Count)
	require.InDelta(t, 0.8, result.Detections[0].MeanConfidence, 1e-6)
	require.Equal(t, "dog", result.Detections[1].Class)

	require.Equal(t, "Person with dog", result.Activity)
}

func TestPipelineQualityFilterRejection(t *testing.T) {
	// All frames too dark: no detection runs, but the request still succeeds
	// with an empty result.
	frames := []*videox.Frame{testFrame(0, 5), testFrame(50, 8), testFrame(100, 3)}
	detector := &scriptedDetector{}
	p := newTestPipeline(t, detector)
	src := &fakeSource{frames: frames}

	result, err := p.Analyze(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, src.closed)
	require.Equal(t, 3, result.FramesSampled)
	require.Equal(t, 0, result.FramesProcessed)
	require.Equal(t, 0, result.TotalDetections)
	require.Empty(t, result.Detections)
	require.Equal(t, ActivityNone, result.Activity)
	require.Equal(t, 0, detector.calls)
}

func TestPipelineModelFailureIsRecoverable(t *testing.T) {
	frames := []*videox.Frame{testFrame(0, 100), testFrame(50, 100), testFrame(100, 100)}
	detector := &scriptedDetector{
		byImg: map[*cimg.Image][]nn.Detection{
			frames[0].Image: {{Class: "cat", Confidence: 0.9}},
			frames[2].Image: {{Class: "cat", Confidence: 0.7}},
		},
		failOn: map[*cimg.Image]bool{frames[1].Image: true},
	}
	p := newTestPipeline(t, detector)
	src := &fakeSource{frames: frames}

	result, err := p.Analyze(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, src.closed)
	require.Equal(t, 1, result.ModelFailures)
	require.Equal(t, 2, result.TotalDetections)
	require.Len(t, result.Detections, 1)
	require.Equal(t, "cat", result.Detections[0].Class)
	require.Equal(t, 2, result.Detections[0].Count)
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := []*videox.Frame{testFrame(0, 100)}
	p := newTestPipeline(t, &scriptedDetector{})
	src := &fakeSource{frames: frames}

	_, err := p.Analyze(ctx, src)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	// the decoding resource is released even on cancellation
	require.Equal(t, 1, src.closed)
}

func TestPipelineDecodeDeadline(t *testing.T) {
	// Time spent before sampling (opening the video) counts against the
	// decode budget. With the deadline already past, the request fails as
	// unreadable, and the source is still released.
	p := newTestPipeline(t, &scriptedDetector{})
	src := &fakeSource{frames: []*videox.Frame{testFrame(0, 100)}}

	_, err := p.analyze(context.Background(), src, time.Now().Add(-time.Second))
	require.Error(t, err)
	require.True(t, errors.Is(err, videox.ErrUnreadableVideo))
	require.Equal(t, 1, src.closed)
}

func TestDetectFramesPreservesOrder(t *testing.T) {
	// More frames than workers, each frame with a unique class, so any slot
	// mixup would be visible.
	classes := []string{"person", "dog", "cat", "car", "bus", "tv", "laptop", "bench"}
	frames := make([]*videox.Frame, len(classes))
	byImg := map[*cimg.Image][]nn.Detection{}
	for i := range classes {
		frames[i] = testFrame(i*10, 100)
		byImg[frames[i].Image] = []nn.Detection{{Class: classes[i], Confidence: 0.9}}
	}
	p := newTestPipeline(t, &scriptedDetector{byImg: byImg})

	perFrame, failures, err := p.detectFrames(context.Background(), frames)
	require.NoError(t, err)
	require.Equal(t, 0, failures)
	require.Len(t, perFrame, len(frames))
	for i, class := range classes {
		require.Len(t, perFrame[i], 1)
		require.Equal(t, class, perFrame[i][0].Class)
	}
}

func TestAnalyzeVideoUnreadable(t *testing.T) {
	p := newTestPipeline(t, &scriptedDetector{})
	_, err := p.AnalyzeVideo(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	require.Error(t, err)
	require.True(t, errors.Is(err, videox.ErrUnreadableVideo))
}
