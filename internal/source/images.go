package source

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"color-sphere-detection/internal/core"
	imageio "color-sphere-detection/internal/io"
)

// Images yields one frame per still image, then io.EOF
type Images struct {
	loader *imageio.ImageLoader
	paths  []string
	next   int
}

// OpenImages resolves files and directories into an ordered image list
func OpenImages(logger logrus.FieldLogger, paths ...string) (*Images, error) {
	loader := imageio.NewImageLoader(logger)
	expanded, err := loader.Expand(paths...)
	if err != nil {
		return nil, err
	}
	if len(expanded) == 0 {
		return nil, fmt.Errorf("no supported images in %v", paths)
	}
	return &Images{loader: loader, paths: expanded}, nil
}

// ImagesOpener adapts OpenImages to a core.SourceOpener
func ImagesOpener(logger logrus.FieldLogger, paths ...string) core.SourceOpener {
	return func(ctx context.Context) (core.FrameSource, error) {
		return OpenImages(logger, paths...)
	}
}

// Len is the number of images the source will deliver
func (s *Images) Len() int {
	return len(s.paths)
}

func (s *Images) WaitForFrames(ctx context.Context) (core.FrameSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.FrameSet{}, false, err
	}
	if s.next >= len(s.paths) {
		return core.FrameSet{}, false, io.EOF
	}

	path := s.paths[s.next]
	s.next++

	mat, err := s.loader.LoadImage(path)
	if err != nil {
		return core.FrameSet{}, false, err
	}
	return core.FrameSet{Color: mat}, true, nil
}

func (s *Images) Close() error {
	s.next = len(s.paths)
	return nil
}
