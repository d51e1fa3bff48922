package frame

import (
	"io"
	"math"
	"sync"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
)

// Source produces an ordered, finite sequence of samples.
//
// Next returns io.EOF once the sequence is exhausted. Any other error means
// the source could not produce the next frame; callers propagate it and do
// not retry.
type Source interface {
	// Next returns the next sample in presentation order
	Next() (*Sample, error)
	// DeclaredFPS returns the nominal frame rate advertised by the source
	DeclaredFPS() float64
	// Close releases source resources
	Close() error
}

// Opener opens a fresh Source positioned at the first frame. Multi-pass
// analyses call it once per pass.
type Opener func() (Source, error)

// SliceSource serves samples held in memory. The samples are never
// modified, so several SliceSources may share the same slice.
type SliceSource struct {
	mu      sync.Mutex
	samples []*Sample
	fps     float64
	pos     int
}

// NewSliceSource creates a source over existing samples.
func NewSliceSource(fps float64, samples []*Sample) *SliceSource {
	return &SliceSource{
		samples: samples,
		fps:     fps,
	}
}

// FromFrames creates a source whose timestamps are index/fps.
func FromFrames(fps float64, frames []*VideoFrame) *SliceSource {
	samples := make([]*Sample, len(frames))
	for i, f := range frames {
		ts := 0.0
		if fps > 0 {
			ts = float64(i) / fps
		}
		samples[i] = &Sample{Index: i, Timestamp: ts, Frame: f}
	}
	return NewSliceSource(fps, samples)
}

// Next implements Source.
func (s *SliceSource) Next() (*Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	sample := s.samples[s.pos]
	s.pos++
	return sample, nil
}

// DeclaredFPS implements Source.
func (s *SliceSource) DeclaredFPS() float64 {
	return s.fps
}

// Close implements Source.
func (s *SliceSource) Close() error {
	return nil
}

// Len returns the total number of samples.
func (s *SliceSource) Len() int {
	return len(s.samples)
}

// Opener returns an Opener producing independent readers over the same
// samples.
func (s *SliceSource) Opener() Opener {
	return func() (Source, error) {
		return NewSliceSource(s.fps, s.samples), nil
	}
}

// stridedSource keeps every rate-th sample of the wrapped source.
type stridedSource struct {
	src  Source
	rate int
	seen int
}

// Strided wraps src so that only every rate-th sample is returned, starting
// with the first. Sample indices are preserved, so they keep pointing at the
// frame position in the unsampled source.
func Strided(src Source, rate int) (Source, error) {
	if rate < 1 {
		return nil, qaerr.InvalidInput("frame.Strided", "sample_rate", rate, "must be a positive integer")
	}
	if rate == 1 {
		return src, nil
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Strided",
		"sample_rate": rate,
	}).Debug("Wrapping source with sampling stride")

	return &stridedSource{src: src, rate: rate}, nil
}

// Next implements Source.
func (s *stridedSource) Next() (*Sample, error) {
	for {
		sample, err := s.src.Next()
		if err != nil {
			return nil, err
		}
		keep := s.seen%s.rate == 0
		s.seen++
		if keep {
			return sample, nil
		}
	}
}

// DeclaredFPS implements Source.
func (s *stridedSource) DeclaredFPS() float64 {
	return s.src.DeclaredFPS()
}

// Close implements Source.
func (s *stridedSource) Close() error {
	return s.src.Close()
}

// StridedOpener wraps every source produced by open with Strided.
func StridedOpener(open Opener, rate int) Opener {
	return func() (Source, error) {
		src, err := open()
		if err != nil {
			return nil, err
		}
		strided, err := Strided(src, rate)
		if err != nil {
			src.Close()
			return nil, err
		}
		return strided, nil
	}
}

// ValidateFPS checks a declared frame rate.
func ValidateFPS(op string, fps float64) error {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return qaerr.InvalidInput(op, "declared_fps", fps, "must be a positive finite number")
	}
	return nil
}
