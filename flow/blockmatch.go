package flow

import (
	"fmt"

	"github.com/opd-ai/motionqa/frame"
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
)

// BlockMatcher estimates one vector per block by exhaustive
// sum-of-absolute-differences search.
//
// For each BlockSize×BlockSize block of the previous frame it finds the
// displacement within ±SearchRadius whose block in the next frame has the
// lowest SAD. The zero displacement is tried first and only a strictly
// lower SAD replaces it, so flat or ambiguous regions report no motion.
type BlockMatcher struct {
	cfg Config
}

// NewBlockMatcher creates a block matcher after validating cfg.
func NewBlockMatcher(cfg Config) (*BlockMatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BlockMatcher{cfg: cfg}, nil
}

// Estimate implements Estimator. Vectors are expressed in source pixels
// even when the pair was downscaled to the working width.
func (m *BlockMatcher) Estimate(prev, next *frame.VideoFrame) (*Field, error) {
	if err := frame.CheckPair("flow.BlockMatcher.Estimate", prev, next); err != nil {
		return nil, err
	}
	a, b, sx, sy, err := workingPair(prev, next, m.cfg.WorkWidth)
	if err != nil {
		return nil, err
	}

	bs := m.cfg.BlockSize
	cols, rows := a.Width/bs, a.Height/bs
	if cols < 1 || rows < 1 {
		return nil, qaerr.InvalidConfiguration("flow.BlockMatcher.Estimate", "block_size", bs,
			fmt.Sprintf("frame %dx%d is smaller than one block", a.Width, a.Height))
	}

	field, err := NewField(a.Width, a.Height, bs, cols, rows)
	if err != nil {
		return nil, err
	}

	radius := m.cfg.SearchRadius
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x0, y0 := col*bs, row*bs
			best := sad(a, b, x0, y0, x0, y0, bs, -1)
			bdx, bdy := 0, 0

			for dy := -radius; dy <= radius && best > 0; dy++ {
				ny := y0 + dy
				if ny < 0 || ny+bs > b.Height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx := x0 + dx
					if nx < 0 || nx+bs > b.Width {
						continue
					}
					if s := sad(a, b, x0, y0, nx, ny, bs, best); s < best {
						best, bdx, bdy = s, dx, dy
					}
				}
			}

			field.Set(col, row, Vector{DX: float64(bdx) * sx, DY: float64(bdy) * sy})
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":       "BlockMatcher.Estimate",
		"cols":           cols,
		"rows":           rows,
		"mean_magnitude": field.MeanMagnitude(),
	}).Trace("Block flow estimated")

	return field, nil
}

// sad sums absolute luma differences between the block at (ax, ay) in a and
// the block at (bx, by) in b. It stops early once the sum reaches limit;
// a negative limit disables the early exit.
func sad(a, b *frame.VideoFrame, ax, ay, bx, by, size, limit int) int {
	as, bs := a.LumaStride(), b.LumaStride()
	sum := 0
	for y := 0; y < size; y++ {
		ar := a.Y[(ay+y)*as+ax : (ay+y)*as+ax+size]
		br := b.Y[(by+y)*bs+bx : (by+y)*bs+bx+size]
		for x := range ar {
			d := int(ar[x]) - int(br[x])
			if d < 0 {
				d = -d
			}
			sum += d
		}
		if limit >= 0 && sum >= limit {
			return sum
		}
	}
	return sum
}
