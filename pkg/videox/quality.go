package videox

import (
	"github.com/bmharper/cimg/v2"
)

// Default mean-brightness band (0..255). Frames outside the band are very
// dark or very bright and are unlikely to yield reliable detections.
// These are empirically tuned values, exposed as configuration.
const (
	DefaultMinBrightness = 20
	DefaultMaxBrightness = 235
)

// Brightness returns the mean luminance of an RGB image, on a 0..255 scale,
// using the Rec.601 luma weights.
func Brightness(img *cimg.Image) float32 {
	if img.Width == 0 || img.Height == 0 {
		return 0
	}
	nchan := img.NChan()
	sum := int64(0)
	for y := 0; y < img.Height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < img.Width; x++ {
			p := x * nchan
			r := int64(row[p])
			g := int64(row[p+1])
			b := int64(row[p+2])
			sum += 299*r + 587*g + 114*b
		}
	}
	return float32(sum) / float32(int64(img.Width)*int64(img.Height)*1000)
}

// QualityFilter rejects frames whose mean brightness falls outside an
// acceptable band.
type QualityFilter struct {
	MinBrightness float32
	MaxBrightness float32
}

func NewQualityFilter() QualityFilter {
	return QualityFilter{
		MinBrightness: DefaultMinBrightness,
		MaxBrightness: DefaultMaxBrightness,
	}
}

// Accept returns true if the frame is worth running detection on.
// The band is exclusive on both ends: a frame whose brightness sits exactly
// on a bound is rejected.
func (f QualityFilter) Accept(img *cimg.Image) bool {
	b := Brightness(img)
	return b > f.MinBrightness && b < f.MaxBrightness
}
