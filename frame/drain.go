package frame

import (
	"context"
	"errors"
	"io"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
)

// Drain reads src until io.EOF, handing every sample to fn.
//
// ctx is checked before each read, so a canceled pass stops between two
// samples and returns a Canceled error. Source failures are returned as
// UpstreamDecodeFailure tagged with the position of the sample that could
// not be produced; they are never retried. An error from fn stops the pass
// and is returned unchanged. Drain returns the number of samples handed to fn.
func Drain(ctx context.Context, op string, src Source, fn func(*Sample) error) (int, error) {
	count := 0
	next := 0
	for {
		if err := ctx.Err(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Drain",
				"op":         op,
				"next_index": next,
			}).Info("Pass canceled")
			return count, qaerr.Canceled(op, next, err)
		}

		s, err := src.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Drain",
				"op":         op,
				"next_index": next,
				"error":      err.Error(),
			}).Error("Frame source failed")
			if errors.Is(err, qaerr.ErrUpstreamDecodeFailure) {
				return count, err
			}
			return count, qaerr.UpstreamDecode(op, next, err)
		}
		if s == nil {
			return count, qaerr.InvalidInput(op, "sample", nil, "source returned a nil sample").WithIndex(next)
		}

		if err := fn(s); err != nil {
			return count, err
		}
		count++
		next = s.Index + 1
	}
}
