// Package compose rasterizes a meme: the generated image framed by a yellow
// border, the two caption overlays and the "LOW QUALITY" badge.
//
// Layout is expressed on a 512px logical canvas and multiplied by the
// render scale, so scale 2 produces the 1024px export.
package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/fpang/slop-meme-generator/internal/caption"
)

const (
	// CanvasSize is the logical edge length of the square meme.
	CanvasSize = 512
	// ExportScale is the multiplier used for downloads.
	ExportScale = 2
	// PreviewScale is the multiplier used for on-screen previews.
	PreviewScale = 1

	borderWidth  = 8
	captionInset = 8
	captionPadX  = 16
	strokeWidth  = 2
)

// ErrInvalidScale is returned for non-positive render scales.
var ErrInvalidScale = errors.New("render scale must be positive")

var (
	borderColor = color.RGBA{0xfa, 0xcc, 0x15, 0xff} // yellow-400
	black       = color.RGBA{0x00, 0x00, 0x00, 0xff}
	yellow      = color.RGBA{0xff, 0xff, 0x00, 0xff}
	magenta     = color.RGBA{0xff, 0x00, 0xff, 0xff}
	cyan        = color.RGBA{0x00, 0xff, 0xff, 0xff}
	white       = color.RGBA{0xff, 0xff, 0xff, 0xff}
	badgeRed    = color.RGBA{0xef, 0x44, 0x44, 0xff} // red-500
	placeFrom   = color.RGBA{0xec, 0x48, 0x99, 0xff} // pink-500
	placeTo     = color.RGBA{0xea, 0xb3, 0x08, 0xff} // yellow-500
)

// Frame is everything needed to draw one meme.
type Frame struct {
	Image     image.Image
	Caption   caption.Pair
	TextScale int
	// Mounted is set once an image URL has been shown, even when it never
	// decoded. A mounted frame without Image renders as a black panel with
	// captions and badge.
	Mounted bool
}

// captionStyle mirrors one of the two overlay styles.
type captionStyle struct {
	fill    color.RGBA
	shadows []shadow
	angle   float64 // degrees, clockwise
}

type shadow struct {
	dx, dy int
	c      color.RGBA
}

// Shadows are painted in reverse so the first entry ends up on top.
var (
	topStyle = captionStyle{
		fill: yellow,
		shadows: []shadow{
			{5, 5, black},
			{-3, -3, magenta},
			{3, -3, cyan},
		},
		angle: -2,
	}
	bottomStyle = captionStyle{
		fill: magenta,
		shadows: []shadow{
			{5, 5, black},
			{-3, -3, yellow},
			{3, -3, cyan},
		},
		angle: 2,
	}
)

// Render draws f at the given scale. A frame with neither an image nor a
// mounted URL gets the placeholder panel and no captions.
func Render(f Frame, scale int) (*image.RGBA, error) {
	if scale <= 0 {
		return nil, ErrInvalidScale
	}
	start := time.Now()

	size := CanvasSize * scale
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(borderColor), image.Point{}, draw.Src)

	inner := dst.Bounds().Inset(borderWidth * scale)
	draw.Draw(dst, inner, image.NewUniform(black), image.Point{}, draw.Src)

	if f.Image == nil && !f.Mounted {
		if err := drawPlaceholder(dst, inner, scale); err != nil {
			return nil, err
		}
		return dst, nil
	}

	if f.Image != nil {
		drawCover(dst, inner, f.Image)
		slopFilter(dst, inner)
	}

	textPx := float64(f.TextScale * scale)
	if err := drawCaption(dst, inner, f.Caption.Top, textPx, scale, topStyle, true); err != nil {
		return nil, fmt.Errorf("failed to draw top caption: %w", err)
	}
	if err := drawCaption(dst, inner, f.Caption.Bottom, textPx, scale, bottomStyle, false); err != nil {
		return nil, fmt.Errorf("failed to draw bottom caption: %w", err)
	}
	if err := drawBadge(dst, inner, scale); err != nil {
		return nil, fmt.Errorf("failed to draw badge: %w", err)
	}

	log.Debug().
		Int("scale", scale).
		Int("size", size).
		Int("text_scale", f.TextScale).
		Dur("duration", time.Since(start)).
		Msg("Meme rendered")

	return dst, nil
}

// drawCover scales src to fill r, cropping the overflow around the centre.
// Nearest-neighbour keeps the pixelated look.
func drawCover(dst *image.RGBA, r image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	rw, rh := float64(r.Dx()), float64(r.Dy())

	s := rw / sw
	if rh/sh > s {
		s = rh / sh
	}
	cropW := int(rw/s + 0.5)
	cropH := int(rh/s + 0.5)
	if cropW > sb.Dx() {
		cropW = sb.Dx()
	}
	if cropH > sb.Dy() {
		cropH = sb.Dy()
	}
	x0 := sb.Min.X + (sb.Dx()-cropW)/2
	y0 := sb.Min.Y + (sb.Dy()-cropH)/2
	crop := image.Rect(x0, y0, x0+cropW, y0+cropH)

	xdraw.NearestNeighbor.Scale(dst, r, src, crop, xdraw.Src, nil)
}

func drawPlaceholder(dst *image.RGBA, r image.Rectangle, scale int) error {
	w, h := r.Dx(), r.Dy()
	span := float64(w + h - 2)
	if span <= 0 {
		span = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(x+y) / span
			dst.SetRGBA(r.Min.X+x, r.Min.Y+y, lerp(placeFrom, placeTo, t))
		}
	}

	face, err := faceFor(float64(30 * scale))
	if err != nil {
		return err
	}
	lines := []string{"NO SLOP YET"}
	blockH := lineHeight(face) * len(lines)
	top := r.Min.Y + (r.Dy()-blockH)/2
	drawLines(dst, r.Min.X, r.Dx(), top, lines, face, black, nil, 0, 0)
	return nil
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0xff}
}
