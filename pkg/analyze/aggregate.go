package analyze

import (
	"sort"

	"github.com/scenescan/scenescan/pkg/nn"
)

// ClassSummary is the per-class rollup of every detection of that class
// across all sampled frames of one video.
type ClassSummary struct {
	Class          string  `json:"class"`
	Count          int     `json:"count"`      // total detections of this class
	Frames         int     `json:"frames"`     // distinct frames the class appeared in
	MeanConfidence float32 `json:"confidence"` // arithmetic mean, 0..1
}

// Aggregate combines per-frame detection lists (one entry per accepted frame,
// in frame order) into ordered class summaries. Nothing is filtered here;
// thresholding already happened in the detector adapter.
//
// The output ordering is part of the contract: descending by Count, ties
// broken by descending MeanConfidence, then ascending by Class, so identical
// input always produces identical output.
func Aggregate(frames [][]nn.Detection) []ClassSummary {
	type accum struct {
		count     int
		frames    int
		sum       float64
		lastFrame int
	}
	byClass := map[string]*accum{}
	for frameIdx, detections := range frames {
		for _, d := range detections {
			a := byClass[d.Class]
			if a == nil {
				a = &accum{lastFrame: -1}
				byClass[d.Class] = a
			}
			a.count++
			a.sum += float64(d.Confidence)
			if a.lastFrame != frameIdx {
				a.frames++
				a.lastFrame = frameIdx
			}
		}
	}

	summaries := make([]ClassSummary, 0, len(byClass))
	for class, a := range byClass {
		summaries = append(summaries, ClassSummary{
			Class:          class,
			Count:          a.count,
			Frames:         a.frames,
			MeanConfidence: float32(a.sum / float64(a.count)),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.MeanConfidence != b.MeanConfidence {
			return a.MeanConfidence > b.MeanConfidence
		}
		return a.Class < b.Class
	})
	return summaries
}

// TopClasses caps the summary list at k entries. The dropped tail still
// counts toward total-detection statistics; it just doesn't appear in the
// response payload.
func TopClasses(summaries []ClassSummary, k int) []ClassSummary {
	if k <= 0 || len(summaries) <= k {
		return summaries
	}
	return summaries[:k]
}
