package frame

import (
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ImageSequenceSource serves numbered still images as frames at a declared
// frame rate, the layout produced by "ffmpeg -i clip.mp4 frame_%05d.png".
type ImageSequenceSource struct {
	paths []string
	fps   float64
	pos   int
}

// NewImageSequenceSource creates a source over the given image files in
// the order given.
func NewImageSequenceSource(paths []string, fps float64) (*ImageSequenceSource, error) {
	if err := ValidateFPS("frame.NewImageSequenceSource", fps); err != nil {
		return nil, err
	}
	return &ImageSequenceSource{
		paths: append([]string(nil), paths...),
		fps:   fps,
	}, nil
}

// GlobImageSequence creates a source over the files matching pattern,
// sorted lexically.
func GlobImageSequence(pattern string, fps float64) (*ImageSequenceSource, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, qaerr.InvalidInput("frame.GlobImageSequence", "pattern", pattern, err.Error())
	}
	sort.Strings(paths)

	logrus.WithFields(logrus.Fields{
		"function": "GlobImageSequence",
		"pattern":  pattern,
		"matches":  len(paths),
	}).Debug("Resolved image sequence")

	return NewImageSequenceSource(paths, fps)
}

// Opener returns an Opener producing independent readers over the same files.
func (s *ImageSequenceSource) Opener() Opener {
	return func() (Source, error) {
		return NewImageSequenceSource(s.paths, s.fps)
	}
}

// Next implements Source.
func (s *ImageSequenceSource) Next() (*Sample, error) {
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	index := s.pos
	path := s.paths[index]
	s.pos++

	f, err := os.Open(path)
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.ImageSequenceSource.Next", index, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.ImageSequenceSource.Next", index, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ImageSequenceSource.Next",
		"index":    index,
		"path":     path,
		"format":   format,
	}).Trace("Decoded image frame")

	return &Sample{
		Index:     index,
		Timestamp: float64(index) / s.fps,
		Frame:     FromImage(img),
	}, nil
}

// DeclaredFPS implements Source.
func (s *ImageSequenceSource) DeclaredFPS() float64 {
	return s.fps
}

// Close implements Source.
func (s *ImageSequenceSource) Close() error {
	return nil
}

// FromImage converts any image to a YUV420 frame. Chroma is taken from the
// top-left pixel of each 2x2 block.
func FromImage(img image.Image) *VideoFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	uvW, uvH := (w+1)/2, (h+1)/2

	f := &VideoFrame{
		Width:   w,
		Height:  h,
		Y:       make([]byte, w*h),
		U:       make([]byte, uvW*uvH),
		V:       make([]byte, uvW*uvH),
		YStride: w,
		UStride: uvW,
		VStride: uvW,
	}

	if ycc, ok := img.(*image.YCbCr); ok {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				f.Y[y*w+x] = ycc.Y[ycc.YOffset(b.Min.X+x, b.Min.Y+y)]
				if x%2 == 0 && y%2 == 0 {
					c := ycc.COffset(b.Min.X+x, b.Min.Y+y)
					f.U[(y/2)*uvW+x/2] = ycc.Cb[c]
					f.V[(y/2)*uvW+x/2] = ycc.Cr[c]
				}
			}
		}
		return f
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.YCbCrModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.YCbCr)
			f.Y[y*w+x] = c.Y
			if x%2 == 0 && y%2 == 0 {
				f.U[(y/2)*uvW+x/2] = c.Cb
				f.V[(y/2)*uvW+x/2] = c.Cr
			}
		}
	}
	return f
}
