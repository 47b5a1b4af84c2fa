package gui

import (
	"errors"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const keyEscape = 27

// Window shows annotated frames in an OpenCV HighGUI window. Escape
// requests a stop.
type Window struct {
	window    *gocv.Window
	maskTitle string
	mask      *gocv.Window
	stop      bool
	logger    logrus.FieldLogger
}

// NewWindow opens the main window. The mask window opens on first use.
func NewWindow(title, maskTitle string, logger logrus.FieldLogger) *Window {
	logger.WithField("title", title).Debug("Opening display window")
	return &Window{
		window:    gocv.NewWindow(title),
		maskTitle: maskTitle,
		logger:    logger,
	}
}

func (w *Window) Show(frame gocv.Mat) error {
	if frame.Empty() {
		return errors.New("cannot show empty frame")
	}
	w.window.IMShow(frame)
	if w.window.WaitKey(1) == keyEscape {
		w.logger.Info("Escape pressed")
		w.stop = true
	}
	return nil
}

func (w *Window) ShowMask(mask gocv.Mat) error {
	if mask.Empty() {
		return errors.New("cannot show empty mask")
	}
	if w.mask == nil {
		w.mask = gocv.NewWindow(w.maskTitle)
	}
	w.mask.IMShow(mask)
	return nil
}

func (w *Window) StopRequested() bool {
	return w.stop
}

func (w *Window) Close() error {
	var errs []error
	if w.mask != nil {
		errs = append(errs, w.mask.Close())
	}
	errs = append(errs, w.window.Close())
	return errors.Join(errs...)
}
