// Package source provides the frame sources the detection loop reads from
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/config"
	"color-sphere-detection/internal/core"
)

// ErrDeviceLost is returned once a camera stops delivering frames for good
var ErrDeviceLost = errors.New("capture device lost")

// maxMisses is roughly ten seconds at 30 fps
const maxMisses = 300

// Camera reads color frames from a capture device
type Camera struct {
	vc     *gocv.VideoCapture
	device int
	misses int
	logger logrus.FieldLogger
}

// OpenCamera opens the device and requests the configured stream format.
// Drivers may ignore the request; the delivered size is logged.
func OpenCamera(device int, stream config.StreamConfig, logger logrus.FieldLogger) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(stream.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(stream.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(stream.FPS))

	logger.WithFields(logrus.Fields{
		"device": device,
		"width":  vc.Get(gocv.VideoCaptureFrameWidth),
		"height": vc.Get(gocv.VideoCaptureFrameHeight),
		"fps":    vc.Get(gocv.VideoCaptureFPS),
	}).Info("Camera opened")

	return &Camera{vc: vc, device: device, logger: logger}, nil
}

// CameraOpener adapts OpenCamera to a core.SourceOpener
func CameraOpener(device int, stream config.StreamConfig, logger logrus.FieldLogger) core.SourceOpener {
	return func(ctx context.Context) (core.FrameSource, error) {
		return OpenCamera(device, stream, logger)
	}
}

// WaitForFrames blocks on the next grab. A failed grab is reported as no
// frame; too many in a row or a closed device is fatal.
func (c *Camera) WaitForFrames(ctx context.Context) (core.FrameSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.FrameSet{}, false, err
	}
	if !c.vc.IsOpened() {
		return core.FrameSet{}, false, fmt.Errorf("camera %d: %w", c.device, ErrDeviceLost)
	}

	img := gocv.NewMat()
	if ok := c.vc.Read(&img); !ok || img.Empty() {
		img.Close()
		c.misses++
		if c.misses >= maxMisses {
			return core.FrameSet{}, false, fmt.Errorf("camera %d: %d grabs failed: %w", c.device, c.misses, ErrDeviceLost)
		}
		return core.FrameSet{}, false, nil
	}
	c.misses = 0

	return core.FrameSet{Color: img}, true, nil
}

func (c *Camera) Close() error {
	c.logger.WithField("device", c.device).Debug("Closing camera")
	return c.vc.Close()
}
