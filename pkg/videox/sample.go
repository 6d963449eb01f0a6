package videox

import (
	"io"
	"sort"

	"github.com/chewxy/math32"
)

// DefaultSampleCount is the default number of frames we extract from a video.
const DefaultSampleCount = 9

// The three timeline zones we sample from. Opening and closing action gets
// the first and last ~15% of the timeline, steady-state content the middle 50%.
const (
	zoneStartFrac = 0.15
	zoneMidLoFrac = 0.25
	zoneMidHiFrac = 0.75
)

// SamplePositions returns the frame indices to extract from a video with
// frameCount decodable frames, targeting n samples. Samples are drawn from
// the start, middle and end zones of the timeline, roughly evenly. A video
// with at least n frames yields exactly n positions; a shorter video yields
// every frame position. The result is sorted ascending and contains no
// duplicates.
func SamplePositions(frameCount, n int) []int {
	if frameCount <= 0 || n <= 0 {
		return nil
	}
	if frameCount <= n {
		all := make([]int, frameCount)
		for i := range all {
			all[i] = i
		}
		return all
	}

	fc := float32(frameCount)
	startHi := int(math32.Round(fc * zoneStartFrac))
	midLo := int(math32.Round(fc * zoneMidLoFrac))
	midHi := int(math32.Round(fc * zoneMidHiFrac))
	endLo := frameCount - startHi

	// Split n across the zones, leftovers go to the middle.
	base := n / 3
	positions := []int{}
	positions = append(positions, spreadPositions(0, startHi, base)...)
	positions = append(positions, spreadPositions(midLo, midHi, n-2*base)...)
	positions = append(positions, spreadPositions(endLo, frameCount, base)...)

	sort.Ints(positions)
	dedup := positions[:0]
	for i, p := range positions {
		if i == 0 || p != dedup[len(dedup)-1] {
			dedup = append(dedup, p)
		}
	}
	// A short video shrinks the zone spans below their quotas, so the zone
	// pass can come up short. Top up from the rest of the timeline.
	if len(dedup) < n {
		dedup = topUpPositions(dedup, frameCount, n)
	}
	return dedup
}

// topUpPositions grows a sorted, duplicate-free position list to exactly n
// entries, preferring unused indices spread over the whole timeline.
// Requires frameCount > n.
func topUpPositions(positions []int, frameCount, n int) []int {
	used := make(map[int]bool, n)
	for _, p := range positions {
		used[p] = true
	}
	for _, p := range spreadPositions(0, frameCount, n) {
		if len(positions) == n {
			break
		}
		if !used[p] {
			used[p] = true
			positions = append(positions, p)
		}
	}
	for p := 0; p < frameCount && len(positions) < n; p++ {
		if !used[p] {
			used[p] = true
			positions = append(positions, p)
		}
	}
	sort.Ints(positions)
	return positions
}

// spreadPositions places k positions evenly inside [lo, hi).
func spreadPositions(lo, hi, k int) []int {
	if k <= 0 || hi <= lo {
		return nil
	}
	span := hi - lo
	if span < k {
		k = span
	}
	out := make([]int, 0, k)
	step := float32(span) / float32(k)
	for i := 0; i < k; i++ {
		p := lo + int(math32.Round(float32(i)*step))
		if p >= hi {
			p = hi - 1
		}
		out = append(out, p)
	}
	return out
}

// FrameReader is a lazy, finite, non-restartable sequence of sampled frames.
// It owns the underlying Video, which is released by Close.
type FrameReader struct {
	video     *Video
	positions []int
	next      int
}

// NewFrameReader opens the video and prepares the sample plan.
// On success the caller must call Close, on every exit path.
func NewFrameReader(filename string, sampleCount int) (*FrameReader, error) {
	if sampleCount <= 0 {
		sampleCount = DefaultSampleCount
	}
	video, err := OpenVideo(filename)
	if err != nil {
		return nil, err
	}
	return &FrameReader{
		video:     video,
		positions: SamplePositions(video.FrameCount(), sampleCount),
	}, nil
}

// Next returns the next sampled frame, or io.EOF when the plan is exhausted.
// Positions that fail to decode are skipped.
func (r *FrameReader) Next() (*Frame, error) {
	for r.next < len(r.positions) {
		pos := r.positions[r.next]
		r.next++
		frame, err := r.video.ReadFrameAt(pos)
		if err != nil {
			continue
		}
		return frame, nil
	}
	return nil, io.EOF
}

// FrameCount is the total decodable frame count of the underlying video.
func (r *FrameReader) FrameCount() int {
	return r.video.FrameCount()
}

// Close releases the video decoding resource. Safe to call more than once.
func (r *FrameReader) Close() {
	r.video.Close()
}
