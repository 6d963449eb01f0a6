package videox

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

// uniformFrame returns an RGB image where every channel of every pixel is v,
// so the mean brightness is exactly v.
func uniformFrame(v byte) *cimg.Image {
	img := cimg.NewImage(32, 24, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = v
	}
	return img
}

func TestBrightness(t *testing.T) {
	require.InDelta(t, 0, Brightness(uniformFrame(0)), 0.01)
	require.InDelta(t, 128, Brightness(uniformFrame(128)), 0.01)
	require.InDelta(t, 255, Brightness(uniformFrame(255)), 0.01)
}

func TestQualityFilterBand(t *testing.T) {
	f := NewQualityFilter()

	// strictly inside the band
	require.True(t, f.Accept(uniformFrame(21)))
	require.True(t, f.Accept(uniformFrame(128)))
	require.True(t, f.Accept(uniformFrame(234)))

	// strictly outside
	require.False(t, f.Accept(uniformFrame(5)))
	require.False(t, f.Accept(uniformFrame(250)))

	// the band is exclusive at both bounds
	require.False(t, f.Accept(uniformFrame(20)))
	require.False(t, f.Accept(uniformFrame(235)))
}
