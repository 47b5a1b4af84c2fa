package gui

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"color-sphere-detection/internal/core"
)

// Viewer is a desktop display built on fyne. It must be run on the main
// goroutine with ShowAndRun; Show and Report may be called from any goroutine.
type Viewer struct {
	app    fyne.App
	window fyne.Window
	logger logrus.FieldLogger

	frameImage *canvas.Image
	maskImage  *canvas.Image
	maskCard   *widget.Card
	status     *widget.Label
	split      *container.Split

	stop atomic.Bool
}

func NewViewer(app fyne.App, title string, logger logrus.FieldLogger) *Viewer {
	window := app.NewWindow(title)
	window.Resize(fyne.NewSize(960, 720))

	v := &Viewer{
		app:    app,
		window: window,
		logger: logger,
	}

	v.initializeUI()
	window.Canvas().SetOnTypedKey(v.onTypedKey)
	window.SetOnClosed(func() {
		v.logger.Info("Viewer window closed")
		v.stop.Store(true)
	})

	return v
}

func (v *Viewer) initializeUI() {
	v.frameImage = newPreviewImage()
	v.maskImage = newPreviewImage()

	v.maskCard = widget.NewCard("Mask", "", v.maskImage)
	v.maskCard.Hide()

	v.split = container.NewHSplit(
		widget.NewCard("Detections", "", v.frameImage),
		v.maskCard,
	)
	v.split.SetOffset(0.7)

	v.status = widget.NewLabel("Waiting for frames")
	v.window.SetContent(container.NewBorder(nil, v.status, nil, nil, v.split))
}

func newPreviewImage() *canvas.Image {
	placeholder := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			placeholder.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	img := canvas.NewImageFromImage(placeholder)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScalePixels
	img.SetMinSize(fyne.NewSize(320, 240))
	return img
}

func (v *Viewer) onTypedKey(ev *fyne.KeyEvent) {
	if ev.Name == fyne.KeyEscape {
		v.logger.Info("Escape pressed")
		v.stop.Store(true)
	}
}

// Show converts the frame on the calling goroutine and swaps it in on the
// UI goroutine
func (v *Viewer) Show(frame gocv.Mat) error {
	img, err := matToImage(frame)
	if err != nil {
		return err
	}
	fyne.Do(func() {
		v.frameImage.Image = img
		v.frameImage.Refresh()
	})
	return nil
}

func (v *Viewer) ShowMask(mask gocv.Mat) error {
	img, err := matToImage(mask)
	if err != nil {
		return err
	}
	fyne.Do(func() {
		v.maskImage.Image = img
		v.maskImage.Refresh()
		if !v.maskCard.Visible() {
			v.maskCard.Show()
		}
	})
	return nil
}

// Report shows the detections of the latest frame in the status bar
func (v *Viewer) Report(record core.FrameRecord) {
	lines := []string{fmt.Sprintf("frame %d  %v", record.Sequence, record.Duration.Round(100*time.Microsecond))}
	for _, c := range record.Detected() {
		lines = append(lines, fmt.Sprintf("%s: %s", c.Color, c.FormatCandidates()))
	}
	text := strings.Join(lines, "\n")

	fyne.Do(func() {
		v.status.SetText(text)
	})
}

func (v *Viewer) StopRequested() bool {
	return v.stop.Load()
}

// Close is a no-op; the window lives until Quit
func (v *Viewer) Close() error {
	return nil
}

// ShowAndRun blocks on the UI event loop
func (v *Viewer) ShowAndRun() {
	v.window.ShowAndRun()
}

// Quit ends the event loop from any goroutine
func (v *Viewer) Quit() {
	fyne.Do(func() {
		v.app.Quit()
	})
}

func matToImage(m gocv.Mat) (image.Image, error) {
	if m.Empty() {
		return nil, errors.New("cannot show empty frame")
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}
