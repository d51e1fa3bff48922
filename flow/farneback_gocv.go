//go:build gocv

package flow

import (
	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// FarnebackParams are the dense flow parameters passed to OpenCV.
type FarnebackParams struct {
	PyrScale   float64
	Levels     int
	WinSize    int
	Iterations int
	PolyN      int
	PolySigma  float64
}

// DefaultFarnebackParams returns the parameters used for motion analysis.
func DefaultFarnebackParams() FarnebackParams {
	return FarnebackParams{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		PolyN:      5,
		PolySigma:  1.2,
	}
}

// Farneback estimates a dense per-pixel field with OpenCV.
type Farneback struct {
	params    FarnebackParams
	workWidth int
}

// NewFarneback creates a dense estimator. Frames wider than workWidth are
// downscaled first; zero keeps the full size.
func NewFarneback(params FarnebackParams, workWidth int) *Farneback {
	return &Farneback{params: params, workWidth: workWidth}
}

// Estimate implements Estimator.
func (e *Farneback) Estimate(prev, next *frame.VideoFrame) (*Field, error) {
	if err := frame.CheckPair("flow.Farneback.Estimate", prev, next); err != nil {
		return nil, err
	}
	a, b, sx, sy, err := workingPair(prev, next, e.workWidth)
	if err != nil {
		return nil, err
	}

	prevMat, err := gocv.NewMatFromBytes(a.Height, a.Width, gocv.MatTypeCV8U, packedLuma(a))
	if err != nil {
		return nil, qaerr.InvalidInput("flow.Farneback.Estimate", "prev", nil, err.Error())
	}
	defer prevMat.Close()
	nextMat, err := gocv.NewMatFromBytes(b.Height, b.Width, gocv.MatTypeCV8U, packedLuma(b))
	if err != nil {
		return nil, qaerr.InvalidInput("flow.Farneback.Estimate", "next", nil, err.Error())
	}
	defer nextMat.Close()

	flowMat := gocv.NewMat()
	defer flowMat.Close()

	p := e.params
	gocv.CalcOpticalFlowFarneback(prevMat, nextMat, &flowMat,
		p.PyrScale, p.Levels, p.WinSize, p.Iterations, p.PolyN, p.PolySigma, 0)

	data, err := flowMat.DataPtrFloat32()
	if err != nil {
		return nil, qaerr.InvalidInput("flow.Farneback.Estimate", "flow", nil, err.Error())
	}

	field, err := NewField(a.Width, a.Height, 1, a.Width, a.Height)
	if err != nil {
		return nil, err
	}
	for i := range field.Vectors {
		field.Vectors[i] = Vector{
			DX: float64(data[2*i]) * sx,
			DY: float64(data[2*i+1]) * sy,
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Farneback.Estimate",
		"width":          a.Width,
		"height":         a.Height,
		"mean_magnitude": field.MeanMagnitude(),
	}).Trace("Dense flow estimated")

	return field, nil
}

// packedLuma returns the luma plane without row padding.
func packedLuma(f *frame.VideoFrame) []byte {
	stride := f.LumaStride()
	if stride == f.Width {
		return f.Y[:f.Width*f.Height]
	}
	out := make([]byte, 0, f.Width*f.Height)
	for y := 0; y < f.Height; y++ {
		out = append(out, f.Y[y*stride:y*stride+f.Width]...)
	}
	return out
}
