package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/motionqa/qaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildY4M encodes frames of constant luma values as a C420 stream.
func buildY4M(width, height int, rate string, lumas ...byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "YUV4MPEG2 W%d H%d F%s Ip A1:1 C420jpeg\n", width, height, rate)
	uv := ((width + 1) / 2) * ((height + 1) / 2)
	for _, l := range lumas {
		buf.WriteString("FRAME\n")
		buf.Write(bytes.Repeat([]byte{l}, width*height))
		buf.Write(bytes.Repeat([]byte{128}, 2*uv))
	}
	return buf.Bytes()
}

func TestY4MSourceReadsFrames(t *testing.T) {
	data := buildY4M(6, 4, "30000:1001", 10, 20, 30)
	src, err := NewY4MSource(bytes.NewReader(data))
	require.NoError(t, err)
	defer src.Close()

	w, h := src.Size()
	assert.Equal(t, 6, w)
	assert.Equal(t, 4, h)
	assert.InDelta(t, 29.97, src.DeclaredFPS(), 0.001)

	for i, want := range []byte{10, 20, 30} {
		s, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, i, s.Index)
		assert.InDelta(t, float64(i)*1001/30000, s.Timestamp, 1e-9)
		assert.Equal(t, want, s.Frame.Luma(5, 3))
		assert.Len(t, s.Frame.U, 6)
	}

	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestY4MSourceMonoChroma(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("YUV4MPEG2 W2 H2 F25:1 Cmono\n")
	buf.WriteString("FRAME\n")
	buf.Write([]byte{1, 2, 3, 4})

	src, err := NewY4MSource(&buf)
	require.NoError(t, err)
	s, err := src.Next()
	require.NoError(t, err)
	assert.Nil(t, s.Frame.U)
	assert.Equal(t, byte(4), s.Frame.Luma(1, 1))
}

func TestY4MSourceTruncatedFrameIsUpstreamFailure(t *testing.T) {
	data := buildY4M(4, 4, "25:1", 50, 60)
	data = data[:len(data)-5]

	src, err := NewY4MSource(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = src.Next()
	require.NoError(t, err)

	_, err = src.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, qaerr.ErrUpstreamDecodeFailure))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	var qe *qaerr.Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 1, qe.Index)
}

func TestY4MSourceRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"wrong magic", "MPEG4 W4 H4 F25:1\n"},
		{"missing size", "YUV4MPEG2 F25:1\n"},
		{"zero rate", "YUV4MPEG2 W4 H4 F0:1\n"},
		{"bad rate", "YUV4MPEG2 W4 H4 F25\n"},
		{"unsupported chroma", "YUV4MPEG2 W4 H4 F25:1 C411\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewY4MSource(bytes.NewBufferString(tt.header))
			assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
		})
	}
}

func TestY4MOpenerReopensFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.y4m")
	require.NoError(t, os.WriteFile(path, buildY4M(4, 4, "24:1", 1, 2), 0o644))

	open := Y4MOpener(path)
	for pass := 0; pass < 2; pass++ {
		src, err := open()
		require.NoError(t, err)
		s, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, 0, s.Index)
		require.NoError(t, src.Close())
	}
}

func TestOpenY4MMissingFile(t *testing.T) {
	_, err := OpenY4M(filepath.Join(t.TempDir(), "missing.y4m"))
	assert.ErrorIs(t, err, qaerr.ErrUpstreamDecodeFailure)
}
