package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/core"
)

// videoProbe keeps only what is needed to size raw frames
type videoProbe struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// ProbeSize returns the dimensions of the first video stream of input
func ProbeSize(input string) (int, int, error) {
	probeStr, err := ffmpeg.Probe(input)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe error: %w", err)
	}

	var probe videoProbe
	if err := json.Unmarshal([]byte(probeStr), &probe); err != nil {
		return 0, 0, fmt.Errorf("json unmarshal error: %w", err)
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "video" && stream.Width > 0 && stream.Height > 0 {
			return stream.Width, stream.Height, nil
		}
	}
	return 0, 0, fmt.Errorf("no video stream found in %s", input)
}

// FFmpegOptions tunes the decoder
type FFmpegOptions struct {
	// Realtime reads the input at its native frame rate
	Realtime bool
	// Width and Height skip probing when both are set
	Width, Height int
}

// FFmpeg decodes any input ffmpeg understands into raw BGR frames read
// from a pipe
type FFmpeg struct {
	input  string
	width  int
	height int
	buf    []byte
	reader *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
	stderr *lockedBuffer
	logger logrus.FieldLogger
}

// OpenFFmpeg starts decoding input
func OpenFFmpeg(ctx context.Context, input string, opts FFmpegOptions, logger logrus.FieldLogger) (*FFmpeg, error) {
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		var err error
		width, height, err = ProbeSize(input)
		if err != nil {
			return nil, err
		}
	}

	inputArgs := ffmpeg.KwArgs{}
	if opts.Realtime {
		inputArgs["re"] = nil
	}

	r, w := io.Pipe()
	stderr := &lockedBuffer{}

	stream := ffmpeg.Input(input, inputArgs).
		Output("pipe:1", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "bgr24",
		}).
		WithOutput(w).
		WithErrorOutput(stderr)

	runCtx, cancel := context.WithCancel(ctx)
	stream.Context = runCtx

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.CloseWithError(stream.Run())
	}()

	logger.WithFields(logrus.Fields{
		"input":  input,
		"width":  width,
		"height": height,
	}).Info("FFmpeg source opened")

	return &FFmpeg{
		input:  input,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
		reader: r,
		cancel: cancel,
		done:   done,
		stderr: stderr,
		logger: logger,
	}, nil
}

// FFmpegOpener adapts OpenFFmpeg to a core.SourceOpener
func FFmpegOpener(input string, opts FFmpegOptions, logger logrus.FieldLogger) core.SourceOpener {
	return func(ctx context.Context) (core.FrameSource, error) {
		return OpenFFmpeg(ctx, input, opts, logger)
	}
}

// Size is the frame size delivered by the decoder
func (f *FFmpeg) Size() (int, int) {
	return f.width, f.height
}

// WaitForFrames reads exactly one frame. A truncated trailing frame counts
// as the end of the stream.
func (f *FFmpeg) WaitForFrames(ctx context.Context) (core.FrameSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.FrameSet{}, false, err
	}

	if _, err := io.ReadFull(f.reader, f.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return core.FrameSet{}, false, io.EOF
		}
		return core.FrameSet{}, false, fmt.Errorf("ffmpeg %s: %w: %s", f.input, err, f.stderr.String())
	}

	raw, err := gocv.NewMatFromBytes(f.height, f.width, gocv.MatTypeCV8UC3, f.buf)
	if err != nil {
		return core.FrameSet{}, false, fmt.Errorf("wrap frame: %w", err)
	}
	// raw aliases the read buffer
	frame := raw.Clone()
	raw.Close()

	return core.FrameSet{Color: frame}, true, nil
}

// Close stops the decoder and waits for it to exit
func (f *FFmpeg) Close() error {
	f.cancel()
	f.reader.Close()
	<-f.done
	f.logger.WithField("input", f.input).Debug("FFmpeg source closed")
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
