package frame

import (
	"fmt"
	"io"
	"math"

	"github.com/opd-ai/motionqa/qaerr"
)

// readFailure classifies a failed capture read at frame index. The read is
// the end of the stream when the container has no usable frame count or
// the decoder position has reached it; otherwise frames were left unread
// and the failure is upstream.
func readFailure(op string, index int, pos, count float64) error {
	if math.IsNaN(count) || count <= 0 {
		return io.EOF
	}
	if math.IsNaN(pos) || pos < float64(index) {
		pos = float64(index)
	}
	if pos >= count {
		return io.EOF
	}
	return qaerr.UpstreamDecode(op, index,
		fmt.Errorf("read failed at frame %.0f of %.0f", pos, count))
}
