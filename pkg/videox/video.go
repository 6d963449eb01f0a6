package videox

// Package videox opens video files and extracts sampled frames for analysis.
// Decoding is done by OpenCV (gocv), which handles container/codec detection
// for us. A Video is exclusive to one request, and must be closed on every
// exit path, because it holds an OS-level capture handle.

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bmharper/cimg/v2"
	"gocv.io/x/gocv"
)

// ErrUnreadableVideo means the source could not be opened or decoded at all
// (corrupt container, unsupported codec, zero-byte file). This is fatal to
// the request that owns the video.
var ErrUnreadableVideo = errors.New("unreadable video")

// Frame is a single decoded RGB image, plus where it came from in the video.
type Frame struct {
	Image *cimg.Image   // 24-bit RGB
	Index int           // Frame index in the source video
	PTS   time.Duration // Presentation time, derived from Index and the source frame rate
}

// Video is an opened, seekable handle to a decoded video file.
type Video struct {
	cap        *gocv.VideoCapture
	filename   string
	frameCount int
	fps        float64
}

// OpenVideo opens a video file for frame extraction.
// Failures to open or probe the file are reported as ErrUnreadableVideo.
func OpenVideo(filename string) (*Video, error) {
	if st, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableVideo, err)
	} else if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %v is empty", ErrUnreadableVideo, filename)
	}
	cap, err := gocv.VideoCaptureFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableVideo, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: failed to open %v", ErrUnreadableVideo, filename)
	}
	frameCount := int(cap.Get(gocv.VideoCaptureFrameCount))
	if frameCount <= 0 {
		cap.Close()
		return nil, fmt.Errorf("%w: %v has no frames", ErrUnreadableVideo, filename)
	}
	return &Video{
		cap:        cap,
		filename:   filename,
		frameCount: frameCount,
		fps:        cap.Get(gocv.VideoCaptureFPS),
	}, nil
}

// Close releases the capture handle. Safe to call more than once.
func (v *Video) Close() {
	if v.cap != nil {
		v.cap.Close()
		v.cap = nil
	}
}

func (v *Video) FrameCount() int {
	return v.frameCount
}

func (v *Video) FPS() float64 {
	return v.fps
}

// ReadFrameAt seeks to the given frame index and decodes it into an RGB image.
// A failure to decode one frame is not fatal to the video; the caller just
// skips that position.
func (v *Video) ReadFrameAt(index int) (*Frame, error) {
	v.cap.Set(gocv.VideoCapturePosFrames, float64(index))
	bgr := gocv.NewMat()
	defer bgr.Close()
	if ok := v.cap.Read(&bgr); !ok || bgr.Empty() {
		return nil, fmt.Errorf("failed to read frame %v of %v", index, v.filename)
	}
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)
	data, err := rgb.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to access frame %v pixels: %w", index, err)
	}
	img := cimg.NewImage(rgb.Cols(), rgb.Rows(), cimg.PixelFormatRGB)
	copy(img.Pixels, data)
	pts := time.Duration(0)
	if v.fps > 0 {
		pts = time.Duration(float64(index) / v.fps * float64(time.Second))
	}
	return &Frame{
		Image: img,
		Index: index,
		PTS:   pts,
	}, nil
}
