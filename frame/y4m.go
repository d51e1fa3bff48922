package frame

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/sirupsen/logrus"
)

const (
	y4mMagic      = "YUV4MPEG2"
	y4mFrameTag   = "FRAME"
	y4mMaxHeader  = 1024
	y4mMaxDimSize = 16384
)

// Y4MSource reads YUV4MPEG2 streams, the raw format decoders such as
// ffmpeg emit with "-f yuv4mpegpipe". Timestamps are index/fps as declared
// by the stream header.
type Y4MSource struct {
	r       *bufio.Reader
	closer  io.Closer
	width   int
	height  int
	fps     float64
	chroma  string
	ySize   int
	uvSize  int
	uvWidth int
	index   int
}

// OpenY4M opens a YUV4MPEG2 file.
func OpenY4M(path string) (*Y4MSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.OpenY4M", qaerr.NoIndex, err)
	}
	src, err := NewY4MSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// Y4MOpener returns an Opener that reopens path on every call.
func Y4MOpener(path string) Opener {
	return func() (Source, error) {
		return OpenY4M(path)
	}
}

// NewY4MSource parses the stream header from r. If r implements io.Closer
// it is closed by Close.
func NewY4MSource(r io.Reader) (*Y4MSource, error) {
	br := bufio.NewReader(r)
	header, err := readY4MLine(br)
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.NewY4MSource", qaerr.NoIndex, err)
	}

	src := &Y4MSource{r: br, chroma: "420jpeg"}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	if err := src.parseHeader(header); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewY4MSource",
		"width":    src.width,
		"height":   src.height,
		"fps":      src.fps,
		"chroma":   src.chroma,
	}).Debug("Parsed YUV4MPEG2 header")

	return src, nil
}

func (s *Y4MSource) parseHeader(header string) error {
	fields := strings.Fields(header)
	if len(fields) == 0 || fields[0] != y4mMagic {
		return qaerr.InvalidInput("frame.NewY4MSource", "magic", header, "not a YUV4MPEG2 stream")
	}

	for _, field := range fields[1:] {
		if len(field) < 2 {
			continue
		}
		value := field[1:]
		switch field[0] {
		case 'W':
			w, err := strconv.Atoi(value)
			if err != nil {
				return qaerr.InvalidInput("frame.NewY4MSource", "width", value, "malformed width")
			}
			s.width = w
		case 'H':
			h, err := strconv.Atoi(value)
			if err != nil {
				return qaerr.InvalidInput("frame.NewY4MSource", "height", value, "malformed height")
			}
			s.height = h
		case 'F':
			fps, err := parseY4MRatio(value)
			if err != nil {
				return qaerr.InvalidInput("frame.NewY4MSource", "frame_rate", value, err.Error())
			}
			s.fps = fps
		case 'C':
			s.chroma = value
		}
	}

	if s.width <= 0 || s.height <= 0 || s.width > y4mMaxDimSize || s.height > y4mMaxDimSize {
		return qaerr.InvalidInput("frame.NewY4MSource", "dimensions",
			fmt.Sprintf("%dx%d", s.width, s.height), "unsupported frame dimensions")
	}
	if err := ValidateFPS("frame.NewY4MSource", s.fps); err != nil {
		return err
	}

	s.ySize = s.width * s.height
	switch {
	case strings.HasPrefix(s.chroma, "420"):
		s.uvWidth = (s.width + 1) / 2
		s.uvSize = s.uvWidth * ((s.height + 1) / 2)
	case s.chroma == "422":
		s.uvWidth = (s.width + 1) / 2
		s.uvSize = s.uvWidth * s.height
	case s.chroma == "444":
		s.uvWidth = s.width
		s.uvSize = s.ySize
	case s.chroma == "mono":
		s.uvSize = 0
	default:
		return qaerr.InvalidInput("frame.NewY4MSource", "chroma", s.chroma, "unsupported chroma subsampling")
	}
	return nil
}

// Next implements Source.
func (s *Y4MSource) Next() (*Sample, error) {
	line, err := readY4MLine(s.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, qaerr.UpstreamDecode("frame.Y4MSource.Next", s.index, err)
	}
	if !strings.HasPrefix(line, y4mFrameTag) {
		return nil, qaerr.UpstreamDecode("frame.Y4MSource.Next", s.index,
			fmt.Errorf("expected FRAME marker, got %q", line))
	}

	f := &VideoFrame{
		Width:   s.width,
		Height:  s.height,
		Y:       make([]byte, s.ySize),
		YStride: s.width,
	}
	if _, err := io.ReadFull(s.r, f.Y); err != nil {
		return nil, qaerr.UpstreamDecode("frame.Y4MSource.Next", s.index, err)
	}
	if s.uvSize > 0 {
		f.U = make([]byte, s.uvSize)
		f.V = make([]byte, s.uvSize)
		f.UStride = s.uvWidth
		f.VStride = s.uvWidth
		if _, err := io.ReadFull(s.r, f.U); err != nil {
			return nil, qaerr.UpstreamDecode("frame.Y4MSource.Next", s.index, err)
		}
		if _, err := io.ReadFull(s.r, f.V); err != nil {
			return nil, qaerr.UpstreamDecode("frame.Y4MSource.Next", s.index, err)
		}
	}

	sample := &Sample{
		Index:     s.index,
		Timestamp: float64(s.index) / s.fps,
		Frame:     f,
	}
	s.index++

	logrus.WithFields(logrus.Fields{
		"function":  "Y4MSource.Next",
		"index":     sample.Index,
		"timestamp": sample.Timestamp,
	}).Trace("Read YUV4MPEG2 frame")

	return sample, nil
}

// DeclaredFPS implements Source.
func (s *Y4MSource) DeclaredFPS() float64 {
	return s.fps
}

// Size returns the frame dimensions from the stream header.
func (s *Y4MSource) Size() (width, height int) {
	return s.width, s.height
}

// Close implements Source.
func (s *Y4MSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// readY4MLine reads one newline-terminated header line. A clean end of
// stream before any byte is io.EOF; a truncated line is io.ErrUnexpectedEOF.
func readY4MLine(r *bufio.Reader) (string, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			if buf.Len() == 0 {
				return "", io.EOF
			}
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		if b == '\n' {
			return buf.String(), nil
		}
		if buf.Len() >= y4mMaxHeader {
			return "", fmt.Errorf("header line exceeds %d bytes", y4mMaxHeader)
		}
		buf.WriteByte(b)
	}
}

func parseY4MRatio(value string) (float64, error) {
	num, den, ok := strings.Cut(value, ":")
	if !ok {
		return 0, fmt.Errorf("frame rate must be N:D")
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed numerator: %w", err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed denominator: %w", err)
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator")
	}
	return n / d, nil
}
