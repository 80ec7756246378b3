// Package render draws point clouds as images.
//
// Clouds are viewed orthographically down the -Z axis with +Y up. All clouds passed to a single
// Render call share one frame fitted to their combined X/Y bounds, so a cropped cloud drawn
// next to its source lines up with it.
package render

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"

	"go.viam.com/pccrop/pointcloud"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Options control how clouds are drawn.
type Options struct {
	Width  int
	Height int
	// Margin is the number of pixels left empty around the fitted frame.
	Margin int
	// PointSize is the side in pixels of the square drawn for each point.
	PointSize float64
	// Background fills the image before points are drawn.
	Background color.Color
	// Label, if set, is written in the top left corner.
	Label string
	// Colormap colors the points that carry no color of their own.
	Colormap Colormap
	// Supersample draws at this multiple of the size and downscales the result. Values below 2
	// disable it.
	Supersample int
}

// DefaultOptions returns 800x600 options with single pixel points on a dark background.
func DefaultOptions() Options {
	return Options{
		Width:      800,
		Height:     600,
		Margin:     10,
		PointSize:  1,
		Background: color.NRGBA{R: 24, G: 24, B: 24, A: 255},
		Colormap:   HeightColormap,
	}
}

func (opts Options) validate() error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return errors.Errorf("image size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	if opts.Margin < 0 || 2*opts.Margin >= opts.Width || 2*opts.Margin >= opts.Height {
		return errors.Errorf("margin %d does not fit a %dx%d image", opts.Margin, opts.Width, opts.Height)
	}
	if opts.PointSize < 0 {
		return errors.Errorf("point size cannot be negative, got %v", opts.PointSize)
	}
	return nil
}

type coloredPoint struct {
	p r3.Vector
	c color.Color
}

// frame maps cloud coordinates onto pixels.
type frame struct {
	centerX, centerY float64
	scale            float64
	width, height    float64
}

func newFrame(meta pointcloud.MetaData, opts Options) frame {
	f := frame{width: float64(opts.Width), height: float64(opts.Height), scale: 1}
	if meta.Empty() {
		return f
	}
	center := meta.Center()
	f.centerX, f.centerY = center.X, center.Y
	ext := meta.Extents()
	usableW := float64(opts.Width - 2*opts.Margin)
	usableH := float64(opts.Height - 2*opts.Margin)
	switch {
	case ext.X > 0 && ext.Y > 0:
		f.scale = math.Min(usableW/ext.X, usableH/ext.Y)
	case ext.X > 0:
		f.scale = usableW / ext.X
	case ext.Y > 0:
		f.scale = usableH / ext.Y
	}
	return f
}

func (f frame) project(p r3.Vector) (float64, float64) {
	return f.width/2 + (p.X-f.centerX)*f.scale, f.height/2 - (p.Y-f.centerY)*f.scale
}

// Render draws the clouds into one image. Points are drawn from far to near so nearer points
// cover the ones behind them.
func Render(clouds []pointcloud.PointCloud, opts Options) (image.Image, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Colormap == nil {
		opts.Colormap = HeightColormap
	}
	if opts.Background == nil {
		opts.Background = DefaultOptions().Background
	}

	combined := pointcloud.NewMetaData()
	total := 0
	for i, cloud := range clouds {
		if cloud == nil {
			return nil, errors.Errorf("cloud %d is nil", i)
		}
		total += cloud.Size()
		cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
			combined.Merge(p, nil)
			return true
		})
	}

	points := make([]coloredPoint, 0, total)
	for _, cloud := range clouds {
		cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
			var c color.Color
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				c = color.NRGBA{R: r, G: g, B: b, A: 255}
			} else {
				c = opts.Colormap(normalize(p.Z, combined.MinZ, combined.MaxZ))
			}
			points = append(points, coloredPoint{p: p, c: c})
			return true
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].p.Z < points[j].p.Z
	})

	scale := 1
	if opts.Supersample >= 2 {
		scale = opts.Supersample
	}
	drawOpts := opts
	drawOpts.Width *= scale
	drawOpts.Height *= scale
	drawOpts.Margin *= scale
	drawOpts.PointSize *= float64(scale)

	f := newFrame(combined, drawOpts)
	dc := gg.NewContext(drawOpts.Width, drawOpts.Height)
	dc.SetColor(opts.Background)
	dc.Clear()
	for _, cp := range points {
		x, y := f.project(cp.p)
		dc.SetColor(cp.c)
		if drawOpts.PointSize <= 1 {
			dc.SetPixel(int(math.Round(x)), int(math.Round(y)))
			continue
		}
		half := drawOpts.PointSize / 2
		dc.DrawRectangle(x-half, y-half, drawOpts.PointSize, drawOpts.PointSize)
		dc.Fill()
	}
	if opts.Label != "" {
		drawLabel(dc, opts.Label, 14*float64(scale))
	}

	if scale == 1 {
		return dc.Image(), nil
	}
	return imaging.Resize(dc.Image(), opts.Width, opts.Height, imaging.Lanczos), nil
}

func drawLabel(dc *gg.Context, text string, size float64) {
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	dc.SetColor(color.White)
	dc.DrawStringWrapped(text, size/2, size/2, 0, 0, float64(dc.Width())-size, 1, gg.AlignLeft)
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// WritePNG writes the image to path. The format follows the extension, png being the usual one.
func WritePNG(path string, img image.Image) error {
	return imaging.Save(img, path)
}
