package render

import (
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Colormap maps a value in [0, 1] to a color. Values outside the range are clamped.
type Colormap func(t float64) color.Color

// HeightColormap runs from blue through green to red as t grows.
func HeightColormap(t float64) color.Color {
	t = clamp01(t)
	r, g, b := colorful.Hsv(240*(1-t), 0.85, 0.95).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// GrayColormap runs from dark gray to white as t grows.
func GrayColormap(t float64) color.Color {
	t = clamp01(t)
	v := uint8(math.Round(64 + 191*t))
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

// BlendColormap interpolates between two colors in the Lab space.
func BlendColormap(from, to color.Color) (Colormap, error) {
	a, ok := colorful.MakeColor(from)
	if !ok {
		return nil, errors.Errorf("bad color %v", from)
	}
	b, ok := colorful.MakeColor(to)
	if !ok {
		return nil, errors.Errorf("bad color %v", to)
	}
	return func(t float64) color.Color {
		r, g, bl := a.BlendLab(b, clamp01(t)).Clamped().RGB255()
		return color.NRGBA{R: r, G: g, B: bl, A: 255}
	}, nil
}

// ColormapByName returns one of "height", "gray" or a "#rrggbb-#rrggbb" blend.
func ColormapByName(name string) (Colormap, error) {
	switch strings.ToLower(name) {
	case "", "height":
		return HeightColormap, nil
	case "gray", "grey":
		return GrayColormap, nil
	}
	from, to, ok := strings.Cut(name, "-")
	if !ok {
		return nil, errors.Errorf("unknown colormap %q", name)
	}
	a, err := colorful.Hex(from)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid colormap start %q", from)
	}
	b, err := colorful.Hex(to)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid colormap end %q", to)
	}
	return BlendColormap(a, b)
}

// ParseColor parses a #rrggbb hex color.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid color %q", hex)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

func clamp01(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return math.Max(0, math.Min(1, t))
}
