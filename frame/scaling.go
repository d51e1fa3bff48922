package frame

import (
	"fmt"

	"github.com/opd-ai/motionqa/qaerr"
)

// ResizeLuma returns a luma-only copy of f resized to width x height with
// bilinear interpolation. When the size already matches, f itself is
// returned; callers must treat the result as read-only.
func ResizeLuma(f *VideoFrame, width, height int) (*VideoFrame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, qaerr.InvalidInput("frame.ResizeLuma", "target",
			fmt.Sprintf("%dx%d", width, height), "target dimensions must be positive")
	}
	if f.Width == width && f.Height == height {
		return f, nil
	}

	dst := make([]byte, width*height)
	resizePlane(f.Y, f.Width, f.Height, f.LumaStride(), dst, width, height, width)

	return &VideoFrame{
		Width:   width,
		Height:  height,
		Y:       dst,
		YStride: width,
	}, nil
}

// resizePlane scales a single plane using bilinear interpolation.
// Buffer sizes are validated by the caller.
func resizePlane(src []byte, srcWidth, srcHeight, srcStride int,
	dst []byte, dstWidth, dstHeight, dstStride int) {

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		// Sample at pixel centers so that downscaling averages symmetric
		// neighbourhoods instead of biasing toward the top-left corner.
		srcY := (float64(y)+0.5)*yRatio - 0.5
		if srcY < 0 {
			srcY = 0
		}
		y1 := int(srcY)
		y2 := y1 + 1
		if y1 >= srcHeight {
			y1 = srcHeight - 1
		}
		if y2 >= srcHeight {
			y2 = srcHeight - 1
		}
		fy := srcY - float64(y1)

		for x := 0; x < dstWidth; x++ {
			srcX := (float64(x)+0.5)*xRatio - 0.5
			if srcX < 0 {
				srcX = 0
			}
			x1 := int(srcX)
			x2 := x1 + 1
			if x1 >= srcWidth {
				x1 = srcWidth - 1
			}
			if x2 >= srcWidth {
				x2 = srcWidth - 1
			}
			fx := srcX - float64(x1)

			p11 := float64(src[y1*srcStride+x1])
			p12 := float64(src[y1*srcStride+x2])
			p21 := float64(src[y2*srcStride+x1])
			p22 := float64(src[y2*srcStride+x2])

			top := p11*(1-fx) + p12*fx
			bottom := p21*(1-fx) + p22*fx
			pixel := top*(1-fy) + bottom*fy

			dst[y*dstStride+x] = byte(pixel + 0.5) // Round to nearest
		}
	}
}
