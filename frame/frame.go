package frame

import (
	"fmt"

	"github.com/opd-ai/motionqa/qaerr"
)

// VideoFrame represents a video frame in YUV420 format.
//
// U and V may be nil for luma-only frames. Strides default to the plane
// width when left at zero.
type VideoFrame struct {
	Width   int
	Height  int
	Y       []byte // Luminance plane
	U       []byte // Chrominance U plane
	V       []byte // Chrominance V plane
	YStride int    // Stride for Y plane
	UStride int    // Stride for U plane
	VStride int    // Stride for V plane
}

// Sample is one frame of a source together with its position in time.
type Sample struct {
	Index     int         // Zero-based frame index in the source
	Timestamp float64     // Presentation time in seconds
	Frame     *VideoFrame // Pixel buffer
}

// NewLumaFrame wraps a luminance plane of width*height bytes.
func NewLumaFrame(width, height int, y []byte) (*VideoFrame, error) {
	f := &VideoFrame{
		Width:   width,
		Height:  height,
		Y:       y,
		YStride: width,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the frame dimensions against its luma plane.
func (f *VideoFrame) Validate() error {
	if f == nil {
		return qaerr.InvalidInput("frame.Validate", "frame", nil, "frame cannot be nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return qaerr.InvalidInput("frame.Validate", "dimensions",
			fmt.Sprintf("%dx%d", f.Width, f.Height), "dimensions must be positive")
	}
	stride := f.LumaStride()
	if stride < f.Width {
		return qaerr.InvalidInput("frame.Validate", "y_stride", stride, "stride smaller than width")
	}
	need := stride*(f.Height-1) + f.Width
	if len(f.Y) < need {
		return qaerr.InvalidInput("frame.Validate", "y_size", len(f.Y),
			fmt.Sprintf("luma plane too small for %dx%d (need %d bytes)", f.Width, f.Height, need))
	}
	return nil
}

// LumaStride returns the effective stride of the Y plane.
func (f *VideoFrame) LumaStride() int {
	if f.YStride > 0 {
		return f.YStride
	}
	return f.Width
}

// Luma returns the luminance at (x, y). Coordinates are not bounds checked.
func (f *VideoFrame) Luma(x, y int) byte {
	return f.Y[y*f.LumaStride()+x]
}

// SameSize reports whether both frames have identical dimensions.
func (f *VideoFrame) SameSize(other *VideoFrame) bool {
	return other != nil && f.Width == other.Width && f.Height == other.Height
}

// Clone creates a deep copy of a video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	return &VideoFrame{
		Width:   f.Width,
		Height:  f.Height,
		YStride: f.YStride,
		UStride: f.UStride,
		VStride: f.VStride,
		Y:       append([]byte(nil), f.Y...),
		U:       append([]byte(nil), f.U...),
		V:       append([]byte(nil), f.V...),
	}
}

// CheckPair validates that two frames can be compared pixel by pixel.
// op names the calling operation in the returned error.
func CheckPair(op string, a, b *VideoFrame) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if !a.SameSize(b) {
		return qaerr.InvalidInput(op, "dimensions",
			fmt.Sprintf("%dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height),
			"frame size mismatch")
	}
	return nil
}
