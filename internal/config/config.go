// Detector configuration: color profiles, stage constants and annotation colors
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile is returned when a color profile fails validation
var ErrInvalidProfile = errors.New("invalid color profile")

// HSV is an OpenCV-scaled HSV triple (H 0-180, S and V 0-255)
type HSV [3]int

// ColorProfile describes one marker color
type ColorProfile struct {
	Name      string `yaml:"name" json:"name"`
	Lower     HSV    `yaml:"lower" json:"lower"`
	Upper     HSV    `yaml:"upper" json:"upper"`
	MinRadius int    `yaml:"min_radius" json:"min_radius"`
	MaxRadius int    `yaml:"max_radius" json:"max_radius"`
}

// Validate checks bounds ordering and the radius range
func (p ColorProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}

	limits := HSV{180, 255, 255}
	for i := 0; i < 3; i++ {
		if p.Lower[i] < 0 || p.Upper[i] > limits[i] {
			return fmt.Errorf("%w: %s channel %d outside [0,%d]", ErrInvalidProfile, p.Name, i, limits[i])
		}
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: %s lower bound exceeds upper bound on channel %d", ErrInvalidProfile, p.Name, i)
		}
	}

	if p.MinRadius <= 0 || p.MinRadius > p.MaxRadius {
		return fmt.Errorf("%w: %s radius range [%d,%d]", ErrInvalidProfile, p.Name, p.MinRadius, p.MaxRadius)
	}

	return nil
}

// SaturationConfig holds the saturation boost curve parameters
type SaturationConfig struct {
	Offset float64 `yaml:"offset"`
	Gain   float64 `yaml:"gain"`
}

// HoughConfig holds the Hough gradient search parameters
type HoughConfig struct {
	DP       float64 `yaml:"dp"`
	MinDist  float64 `yaml:"min_dist"`
	Param1   float64 `yaml:"param1"`
	Param2   float64 `yaml:"param2"`
	Solidity float64 `yaml:"solidity"`
}

// FallbackConfig holds contour fallback parameters
type FallbackConfig struct {
	MinPoints int `yaml:"min_points"`
}

// StreamConfig is the frame size and rate requested from a camera
type StreamConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// AnnotationConfig holds marker colors as hex strings
type AnnotationConfig struct {
	Outline  string `yaml:"outline"`
	Center   string `yaml:"center"`
	Contours string `yaml:"contours"`
	Fallback string `yaml:"fallback"`
}

// Palette is the parsed form of AnnotationConfig
type Palette struct {
	Outline  color.RGBA
	Center   color.RGBA
	Contours color.RGBA
	Fallback color.RGBA
}

// SnapshotConfig controls saving of annotated frames
type SnapshotConfig struct {
	Dir      string `yaml:"dir"`
	Every    int    `yaml:"every"`
	MaxWidth int    `yaml:"max_width"`
	Format   string `yaml:"format"`
}

// Config is the full detector configuration
type Config struct {
	Stream           StreamConfig     `yaml:"stream"`
	Saturation       SaturationConfig `yaml:"saturation"`
	MedianKernel     int              `yaml:"median_kernel"`
	MorphKernel      int              `yaml:"morph_kernel"`
	Hough            HoughConfig      `yaml:"hough"`
	Fallback         FallbackConfig   `yaml:"fallback"`
	Profiles         []ColorProfile   `yaml:"profiles"`
	Annotations      AnnotationConfig `yaml:"annotations"`
	Snapshots        SnapshotConfig   `yaml:"snapshots"`
	Parallel         bool             `yaml:"parallel"`
	DebugMaskProfile string           `yaml:"debug_mask_profile"`
}

// DefaultProfiles returns the calibrated purple, red and blue profiles.
// Hues are calibrated against frames whose channel order is read as RGB,
// so "red" sits at the blue end of the hue circle.
func DefaultProfiles() []ColorProfile {
	return []ColorProfile{
		{Name: "purple", Lower: HSV{137, 143, 0}, Upper: HSV{179, 203, 255}, MinRadius: 10, MaxRadius: 200},
		{Name: "red", Lower: HSV{117, 143, 0}, Upper: HSV{133, 255, 255}, MinRadius: 10, MaxRadius: 200},
		{Name: "blue", Lower: HSV{0, 159, 0}, Upper: HSV{16, 255, 255}, MinRadius: 10, MaxRadius: 200},
	}
}

// DefaultConfig returns the reference configuration
func DefaultConfig() Config {
	return Config{
		Stream: StreamConfig{Width: 640, Height: 480, FPS: 30},
		Saturation: SaturationConfig{
			Offset: 102,
			Gain:   0.6,
		},
		MedianKernel: 5,
		MorphKernel:  3,
		Hough: HoughConfig{
			DP:       1.5,
			MinDist:  20,
			Param1:   30,
			Param2:   0.50,
			Solidity: 0.9,
		},
		Fallback: FallbackConfig{MinPoints: 50},
		Profiles: DefaultProfiles(),
		Annotations: AnnotationConfig{
			Outline:  "#FFFF00",
			Center:   "#00FFFF",
			Contours: "#FFFF00",
			Fallback: "#FF0000",
		},
		Snapshots: SnapshotConfig{
			Every:    30,
			MaxWidth: 640,
			Format:   "png",
		},
	}
}

// Load reads a YAML file on top of the defaults
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks every section of the configuration
func (c Config) Validate() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("%w: no profiles configured", ErrInvalidProfile)
	}

	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidProfile, p.Name)
		}
		seen[p.Name] = true
	}

	if c.DebugMaskProfile != "" && !seen[c.DebugMaskProfile] {
		return fmt.Errorf("debug_mask_profile %q does not name a profile", c.DebugMaskProfile)
	}

	if c.MedianKernel < 3 || c.MedianKernel%2 == 0 {
		return fmt.Errorf("median_kernel must be an odd number >= 3, got %d", c.MedianKernel)
	}

	if c.MorphKernel < 1 {
		return fmt.Errorf("morph_kernel must be positive, got %d", c.MorphKernel)
	}

	if c.Hough.DP <= 0 || c.Hough.MinDist <= 0 {
		return fmt.Errorf("hough dp and min_dist must be positive")
	}

	if c.Hough.Solidity <= 0 || c.Hough.Solidity > 1 {
		return fmt.Errorf("hough solidity must be in (0,1], got %.2f", c.Hough.Solidity)
	}

	if c.Fallback.MinPoints < 0 {
		return fmt.Errorf("fallback min_points must not be negative")
	}

	if _, err := c.Annotations.Palette(); err != nil {
		return err
	}

	return nil
}

// Profile looks up a profile by name
func (c Config) Profile(name string) (ColorProfile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ColorProfile{}, false
}

// Palette parses the hex annotation colors
func (a AnnotationConfig) Palette() (Palette, error) {
	var pal Palette
	fields := []struct {
		name string
		hex  string
		dst  *color.RGBA
	}{
		{"outline", a.Outline, &pal.Outline},
		{"center", a.Center, &pal.Center},
		{"contours", a.Contours, &pal.Contours},
		{"fallback", a.Fallback, &pal.Fallback},
	}

	for _, f := range fields {
		c, err := colorful.Hex(f.hex)
		if err != nil {
			return pal, fmt.Errorf("annotation color %s: %w", f.name, err)
		}
		r, g, b := c.RGB255()
		*f.dst = color.RGBA{R: r, G: g, B: b, A: 255}
	}

	return pal, nil
}
