package similarity

import (
	"math"

	"github.com/opd-ai/motionqa/frame"
	"gonum.org/v1/gonum/stat"
)

// SSIM stabilizing constants for 8-bit luma, (k·L)² with L = 255.
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

// PixelSimilarity returns 1 − mean|a−b|/255 over the luma planes. Identical
// frames score exactly 1. Both frames must have the same size.
func PixelSimilarity(a, b *frame.VideoFrame) float64 {
	as, bs := a.LumaStride(), b.LumaStride()
	var sum uint64
	for y := 0; y < a.Height; y++ {
		ar := a.Y[y*as : y*as+a.Width]
		br := b.Y[y*bs : y*bs+b.Width]
		for x := range ar {
			d := int(ar[x]) - int(br[x])
			if d < 0 {
				d = -d
			}
			sum += uint64(d)
		}
	}
	n := float64(a.Width * a.Height)
	return 1 - float64(sum)/n/255
}

// GlobalSSIM computes a single-window structural similarity index over the
// whole luma plane, using population mean, variance and covariance.
func GlobalSSIM(a, b *frame.VideoFrame) float64 {
	x := lumaFloats(a)
	y := lumaFloats(b)

	muX, varX := stat.PopMeanVariance(x, nil)
	muY, varY := stat.PopMeanVariance(y, nil)

	var cov float64
	for i := range x {
		cov += (x[i] - muX) * (y[i] - muY)
	}
	cov /= float64(len(x))

	num := (2*muX*muY + ssimC1) * (2*cov + ssimC2)
	den := (muX*muX + muY*muY + ssimC1) * (varX + varY + ssimC2)
	return math.Min(1, num/den)
}

func lumaFloats(f *frame.VideoFrame) []float64 {
	out := make([]float64, 0, f.Width*f.Height)
	stride := f.LumaStride()
	for y := 0; y < f.Height; y++ {
		for _, v := range f.Y[y*stride : y*stride+f.Width] {
			out = append(out, float64(v))
		}
	}
	return out
}
