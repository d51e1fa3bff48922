//go:build gocv

package flow

import (
	"math"
	"testing"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smoothFrame renders a sinusoidal pattern moved right by dx pixels.
func smoothFrame(width, height int, dx float64) *frame.VideoFrame {
	y := make([]byte, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x := float64(col) - dx
			v := 128 + 50*math.Sin(2*math.Pi*x/24) + 40*math.Cos(2*math.Pi*float64(row)/20)
			y[row*width+col] = byte(v)
		}
	}
	return &frame.VideoFrame{Width: width, Height: height, Y: y, YStride: width}
}

func TestFarnebackFollowsTranslation(t *testing.T) {
	e := NewFarneback(DefaultFarnebackParams(), 0)
	field, err := e.Estimate(smoothFrame(96, 96, 0), smoothFrame(96, 96, 2))
	require.NoError(t, err)
	assert.Equal(t, 96, field.Cols)
	assert.Equal(t, 1, field.Step)

	var sum float64
	n := 0
	for row := 24; row < 72; row++ {
		for col := 24; col < 72; col++ {
			sum += field.At(col, row).DX
			n++
		}
	}
	assert.InDelta(t, 2.0, sum/float64(n), 0.5)
}

func TestFarnebackStaticScene(t *testing.T) {
	e := NewFarneback(DefaultFarnebackParams(), 0)
	f := smoothFrame(64, 64, 0)
	field, err := e.Estimate(f, f)
	require.NoError(t, err)
	assert.Less(t, field.MeanMagnitude(), 0.05)
}

func TestFarnebackRejectsMismatchedPair(t *testing.T) {
	e := NewFarneback(DefaultFarnebackParams(), 0)
	_, err := e.Estimate(smoothFrame(64, 64, 0), smoothFrame(32, 64, 0))
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}
