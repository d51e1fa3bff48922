// Package frame provides the frame source side of motionqa.
//
// Decoding is not part of this module. A Source is the collaborator that
// hands the analyzers an ordered, finite sequence of samples, each carrying
// a frame index, a presentation timestamp in seconds and a pixel buffer:
//
//	src, err := frame.OpenY4M("clip.y4m")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	for {
//	    sample, err := src.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // use sample.Frame.Y
//	}
//
// # Pixel Buffers
//
// Frames use the planar YUV420 layout:
//
//	frame := &frame.VideoFrame{
//	    Width:  640,
//	    Height: 480,
//	    Y:      yPlane, // Luminance plane (full resolution)
//	    U:      uPlane, // Chrominance U (half resolution, optional)
//	    V:      vPlane, // Chrominance V (half resolution, optional)
//	}
//
// Every analysis reads the luminance plane only, so luma-only frames with
// nil chroma planes are valid input.
//
// # Sources
//
//   - SliceSource: samples already held in memory
//   - Y4MSource: YUV4MPEG2 streams (raw frames piped out of a decoder)
//   - ImageSequenceSource: numbered still images (PNG, JPEG, GIF, BMP, TIFF, WebP)
//   - CaptureSource: OpenCV VideoCapture, only with the gocv build tag
//
// Strided wraps any Source to keep every Nth sample, which bounds the work
// done on long videos. Analyses that need several passes take an Opener so
// they can re-read the source from the start.
//
// # Lookback
//
// None of the analyses need more than three consecutive frames. Window is a
// fixed-capacity ring that keeps the most recent samples and drops the rest.
package frame
