package timing

import (
	"github.com/opd-ai/motionqa/qaerr"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// VideoClockRate is the RTP clock rate used by video payload formats.
const VideoClockRate = 90000

// RTPTimestamps converts a packet stream into per-frame presentation times
// in seconds, relative to the first frame.
//
// Packets of one frame share an RTP timestamp, so a frame starts whenever the
// timestamp moves past the newest one seen. The 32-bit timestamp is
// unwrapped by treating every step as a signed delta, which survives
// wraparound. A packet whose timestamp is behind the newest frame arrived
// late and is skipped, so reordered fragments never start a frame twice.
func RTPTimestamps(packets []*rtp.Packet, clockRate uint32) ([]float64, error) {
	if clockRate == 0 {
		return nil, qaerr.InvalidInput("timing.RTPTimestamps", "clock_rate", clockRate, "must be positive")
	}
	if len(packets) == 0 {
		return nil, qaerr.InsufficientData("timing.RTPTimestamps", 0, 1)
	}

	var (
		timestamps []float64
		newest     uint32
		unwrapped  int64
		late       int
	)
	for i, p := range packets {
		if p == nil {
			return nil, qaerr.InvalidInput("timing.RTPTimestamps", "packet", nil, "nil packet").WithIndex(i)
		}
		ts := p.Timestamp
		if i == 0 {
			newest = ts
			timestamps = append(timestamps, 0)
			continue
		}
		delta := int64(int32(ts - newest))
		if delta == 0 {
			continue
		}
		if delta < 0 {
			late++
			logrus.WithFields(logrus.Fields{
				"function":  "RTPTimestamps",
				"index":     i,
				"sequence":  p.SequenceNumber,
				"timestamp": ts,
				"newest":    newest,
			}).Trace("Skipping late RTP packet")
			continue
		}
		unwrapped += delta
		newest = ts
		timestamps = append(timestamps, float64(unwrapped)/float64(clockRate))
	}

	logrus.WithFields(logrus.Fields{
		"function":   "RTPTimestamps",
		"packets":    len(packets),
		"frames":     len(timestamps),
		"late":       late,
		"clock_rate": clockRate,
	}).Debug("Extracted frame timestamps from RTP stream")

	return timestamps, nil
}

// RTPTimestampsFromBytes unmarshals raw RTP packets and extracts frame
// timestamps from them. A packet that fails to parse is an upstream failure
// at its position in the stream.
func RTPTimestampsFromBytes(raw [][]byte, clockRate uint32) ([]float64, error) {
	packets := make([]*rtp.Packet, 0, len(raw))
	for i, b := range raw {
		p := &rtp.Packet{}
		if err := p.Unmarshal(b); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "RTPTimestampsFromBytes",
				"index":    i,
				"error":    err.Error(),
			}).Warn("Failed to unmarshal RTP packet")
			return nil, qaerr.UpstreamDecode("timing.RTPTimestampsFromBytes", i, err)
		}
		packets = append(packets, p)
	}
	return RTPTimestamps(packets, clockRate)
}
