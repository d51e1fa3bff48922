//go:build gocv

package frame

import (
	"fmt"
	"io"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CaptureSource reads frames through OpenCV's VideoCapture. Timestamps come
// from the container (CAP_PROP_POS_MSEC), so timing jitter in the file is
// preserved. Only the luminance plane is kept.
type CaptureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	gray    gocv.Mat
	fps     float64
	index   int
}

// OpenCapture opens a video file or device path with OpenCV.
func OpenCapture(path string) (*CaptureSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.OpenCapture", qaerr.NoIndex, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, qaerr.UpstreamDecode("frame.OpenCapture", qaerr.NoIndex,
			fmt.Errorf("could not open %s", path))
	}

	src := &CaptureSource{
		capture: capture,
		mat:     gocv.NewMat(),
		gray:    gocv.NewMat(),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenCapture",
		"path":        path,
		"fps":         src.fps,
		"frame_count": capture.Get(gocv.VideoCaptureFrameCount),
	}).Debug("Opened OpenCV capture")

	return src, nil
}

// CaptureOpener returns an Opener that reopens path on every call.
func CaptureOpener(path string) Opener {
	return func() (Source, error) {
		return OpenCapture(path)
	}
}

// Next implements Source. A failed read before the container's frame
// count is reached is an upstream failure, not the end of the stream.
func (s *CaptureSource) Next() (*Sample, error) {
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		pos := s.capture.Get(gocv.VideoCapturePosFrames)
		count := s.capture.Get(gocv.VideoCaptureFrameCount)
		err := readFailure("frame.CaptureSource.Next", s.index, pos, count)
		if err != io.EOF {
			logrus.WithFields(logrus.Fields{
				"function":    "CaptureSource.Next",
				"index":       s.index,
				"position":    pos,
				"frame_count": count,
			}).Warn("Capture read failed before the last frame")
		}
		return nil, err
	}
	timestamp := s.capture.Get(gocv.VideoCapturePosMsec) / 1000.0

	if s.mat.Channels() == 1 {
		s.mat.CopyTo(&s.gray)
	} else {
		gocv.CvtColor(s.mat, &s.gray, gocv.ColorBGRToGray)
	}

	width, height := s.gray.Cols(), s.gray.Rows()
	luma := s.gray.ToBytes()
	f, err := NewLumaFrame(width, height, luma)
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.CaptureSource.Next", s.index, err)
	}

	sample := &Sample{Index: s.index, Timestamp: timestamp, Frame: f}
	s.index++
	return sample, nil
}

// DeclaredFPS implements Source.
func (s *CaptureSource) DeclaredFPS() float64 {
	return s.fps
}

// Close implements Source.
func (s *CaptureSource) Close() error {
	s.mat.Close()
	s.gray.Close()
	return s.capture.Close()
}
