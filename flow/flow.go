// Package flow defines the optical flow boundary consumed by the motion
// analyzers.
//
// An Estimator turns two consecutive frames into a Field of displacement
// vectors. Callers use two derived views of a field: the mean vector
// magnitude, one scalar per frame pair, and a coarse Grid of block-wise
// mean vectors. How a field is estimated is up to the Estimator; this
// package ships a pure-Go block matcher and, with the gocv build tag, an
// OpenCV Farneback estimator.
package flow

import (
	"fmt"
	"math"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
)

// Vector is a displacement in pixels from the previous frame to the next.
type Vector struct {
	DX float64 `json:"dx" yaml:"dx"`
	DY float64 `json:"dy" yaml:"dy"`
}

// Magnitude returns the vector length.
func (v Vector) Magnitude() float64 {
	return math.Hypot(v.DX, v.DY)
}

// Angle returns the vector direction in radians, in (−π, π].
func (v Vector) Angle() float64 {
	return math.Atan2(v.DY, v.DX)
}

// Field is a regular lattice of displacement vectors stored row-major.
// Each vector stands for a Step×Step pixel cell of the frame the field was
// estimated on.
type Field struct {
	Width   int // frame width in pixels
	Height  int // frame height in pixels
	Step    int // pixels per vector along each axis
	Cols    int
	Rows    int
	Vectors []Vector
}

// NewField allocates a zero field of cols×rows vectors.
func NewField(width, height, step, cols, rows int) (*Field, error) {
	if cols < 1 || rows < 1 || step < 1 {
		return nil, qaerr.InvalidConfiguration("flow.NewField", "lattice",
			fmt.Sprintf("%dx%d step %d", cols, rows, step), "field needs at least one vector")
	}
	return &Field{
		Width:   width,
		Height:  height,
		Step:    step,
		Cols:    cols,
		Rows:    rows,
		Vectors: make([]Vector, cols*rows),
	}, nil
}

// At returns the vector at lattice position (col, row).
func (f *Field) At(col, row int) Vector {
	return f.Vectors[row*f.Cols+col]
}

// Set stores the vector at lattice position (col, row).
func (f *Field) Set(col, row int, v Vector) {
	f.Vectors[row*f.Cols+col] = v
}

// MeanMagnitude returns the mean vector length over the whole field.
func (f *Field) MeanMagnitude() float64 {
	if len(f.Vectors) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range f.Vectors {
		sum += v.Magnitude()
	}
	return sum / float64(len(f.Vectors))
}

// Grid is a coarse partition of a field into block-wise mean vectors,
// stored row-major.
type Grid struct {
	Rows   int
	Cols   int
	Blocks []Vector
}

// At returns the mean vector of block (row, col).
func (g *Grid) At(row, col int) Vector {
	return g.Blocks[row*g.Cols+col]
}

// Grid partitions the field into rows×cols blocks and averages the vectors
// of each. Blocks are field.Rows/rows by field.Cols/cols vectors; the last
// row and column of blocks absorb the remainder.
func (f *Field) Grid(rows, cols int) (*Grid, error) {
	if rows < 1 || cols < 1 {
		return nil, qaerr.InvalidConfiguration("flow.Grid", "grid",
			fmt.Sprintf("%dx%d", rows, cols), "grid needs at least one block per axis")
	}
	if rows > f.Rows || cols > f.Cols {
		return nil, qaerr.InvalidConfiguration("flow.Grid", "grid",
			fmt.Sprintf("%dx%d", rows, cols),
			fmt.Sprintf("grid is finer than the %dx%d field", f.Rows, f.Cols))
	}

	bh := f.Rows / rows
	bw := f.Cols / cols
	g := &Grid{Rows: rows, Cols: cols, Blocks: make([]Vector, rows*cols)}

	for r := 0; r < rows; r++ {
		y0, y1 := r*bh, (r+1)*bh
		if r == rows-1 {
			y1 = f.Rows
		}
		for c := 0; c < cols; c++ {
			x0, x1 := c*bw, (c+1)*bw
			if c == cols-1 {
				x1 = f.Cols
			}

			var sx, sy float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					v := f.Vectors[y*f.Cols+x]
					sx += v.DX
					sy += v.DY
				}
			}
			n := float64((y1 - y0) * (x1 - x0))
			g.Blocks[r*cols+c] = Vector{DX: sx / n, DY: sy / n}
		}
	}
	return g, nil
}

// Estimator computes the motion between two frames of equal size.
type Estimator interface {
	Estimate(prev, next *frame.VideoFrame) (*Field, error)
}

// Config holds the block matcher and working resolution settings.
type Config struct {
	// BlockSize is the side of a matching block in pixels
	BlockSize int `yaml:"block_size" json:"block_size"`
	// SearchRadius is the largest displacement searched along each axis
	SearchRadius int `yaml:"search_radius" json:"search_radius"`
	// WorkWidth caps the luma width flow is estimated at. Wider frames are
	// downscaled first and vectors are scaled back to source pixels.
	// Zero estimates at full size.
	WorkWidth int `yaml:"work_width" json:"work_width"`
}

// DefaultConfig returns the default flow settings.
func DefaultConfig() Config {
	return Config{
		BlockSize:    16,
		SearchRadius: 7,
		WorkWidth:    320,
	}
}

// Validate checks the flow settings.
func (c Config) Validate() error {
	if c.BlockSize < 2 {
		return qaerr.InvalidInput("flow.Config", "block_size", c.BlockSize, "must be at least 2")
	}
	if c.SearchRadius < 1 {
		return qaerr.InvalidInput("flow.Config", "search_radius", c.SearchRadius, "must be positive")
	}
	if c.WorkWidth < 0 {
		return qaerr.InvalidInput("flow.Config", "work_width", c.WorkWidth, "must not be negative")
	}
	if c.WorkWidth > 0 && c.WorkWidth < c.BlockSize {
		return qaerr.InvalidConfiguration("flow.Config", "work_width", c.WorkWidth, "narrower than one block")
	}
	return nil
}

// workingPair downscales a validated pair to at most workWidth pixels wide.
// It returns the scale factors that map working pixels back to source
// pixels.
func workingPair(prev, next *frame.VideoFrame, workWidth int) (a, b *frame.VideoFrame, sx, sy float64, err error) {
	if workWidth == 0 || prev.Width <= workWidth {
		return prev, next, 1, 1, nil
	}
	h := int(math.Round(float64(prev.Height) * float64(workWidth) / float64(prev.Width)))
	if h < 1 {
		h = 1
	}
	if a, err = frame.ResizeLuma(prev, workWidth, h); err != nil {
		return nil, nil, 0, 0, err
	}
	if b, err = frame.ResizeLuma(next, workWidth, h); err != nil {
		return nil, nil, 0, 0, err
	}
	return a, b, float64(prev.Width) / float64(workWidth), float64(prev.Height) / float64(h), nil
}
