package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	xdraw "golang.org/x/image/draw"
)

const (
	badgeTextPx  = 12
	badgeLineH   = 16
	badgePadX    = 8
	badgePadY    = 4
	badgeBorder  = 2
	shadowMargin = 6
)

var parseBold = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// faceFor returns a new bold face at px pixels. Faces are not safe for
// concurrent use, so every render gets its own.
func faceFor(px float64) (font.Face, error) {
	f, err := parseBold()
	if err != nil {
		return nil, fmt.Errorf("failed to parse caption font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    px,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %.0fpx face: %w", px, err)
	}
	return face, nil
}

func lineHeight(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

// wrap breaks text into lines no wider than maxW. A single word wider than
// maxW keeps a line of its own.
func wrap(face font.Face, text string, maxW int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if font.MeasureString(face, candidate).Ceil() <= maxW {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
	}
	return append(lines, line)
}

// drawLines centres each line horizontally within [x0, x0+width) starting
// at top. Shadows go first, then the stroke, then the fill.
func drawLines(dst draw.Image, x0, width, top int, lines []string, face font.Face, fill color.RGBA, shadows []shadow, stroke, scale int) {
	lh := lineHeight(face)
	ascent := face.Metrics().Ascent.Ceil()

	for i, line := range lines {
		w := font.MeasureString(face, line).Ceil()
		x := x0 + (width-w)/2
		baseline := top + i*lh + ascent

		for j := len(shadows) - 1; j >= 0; j-- {
			s := shadows[j]
			drawString(dst, face, line, x+s.dx*scale, baseline+s.dy*scale, s.c)
		}
		if stroke > 0 {
			for dy := -stroke; dy <= stroke; dy++ {
				for dx := -stroke; dx <= stroke; dx++ {
					if dx*dx+dy*dy > stroke*stroke || (dx == 0 && dy == 0) {
						continue
					}
					drawString(dst, face, line, x+dx, baseline+dy, black)
				}
			}
		}
		drawString(dst, face, line, x, baseline, fill)
	}
}

func drawString(dst draw.Image, face font.Face, s string, x, baseline int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}

// drawCaption renders one caption block onto its own layer and composites
// it, rotated by the style's angle, inside r. Nothing is drawn outside r.
func drawCaption(dst *image.RGBA, r image.Rectangle, text string, px float64, scale int, style captionStyle, atTop bool) error {
	text = strings.ToUpper(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	face, err := faceFor(px)
	if err != nil {
		return err
	}
	defer face.Close()

	lines := wrap(face, text, r.Dx()-2*captionPadX*scale)
	lh := lineHeight(face)
	margin := (shadowMargin + strokeWidth) * scale

	layerW := r.Dx()
	layerH := lh*len(lines) + 2*margin
	layer := image.NewRGBA(image.Rect(0, 0, layerW, layerH))
	drawLines(layer, 0, layerW, margin, lines, face, style.fill, style.shadows, strokeWidth*scale, scale)

	y := r.Min.Y + captionInset*scale - margin
	if !atTop {
		y = r.Max.Y - captionInset*scale - lh*len(lines) - margin
	}
	cx := float64(r.Min.X) + float64(layerW)/2
	cy := float64(y) + float64(layerH)/2

	clip, ok := dst.SubImage(r).(*image.RGBA)
	if !ok {
		return fmt.Errorf("unexpected sub-image type %T", dst.SubImage(r))
	}
	xdraw.BiLinear.Transform(clip, rotateAbout(style.angle, float64(layerW)/2, float64(layerH)/2, cx, cy), layer, layer.Bounds(), xdraw.Over, nil)
	return nil
}

// rotateAbout maps the layer point (lx, ly) onto (dx, dy) and rotates
// around it by deg degrees clockwise in screen coordinates.
func rotateAbout(deg, lx, ly, dx, dy float64) f64.Aff3 {
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return f64.Aff3{
		cos, -sin, dx - (cos*lx - sin*ly),
		sin, cos, dy - (sin*lx + cos*ly),
	}
}

// drawBadge puts the red "LOW QUALITY" tag in the top-right corner of r.
func drawBadge(dst *image.RGBA, r image.Rectangle, scale int) error {
	face, err := faceFor(float64(badgeTextPx * scale))
	if err != nil {
		return err
	}
	defer face.Close()

	const label = "LOW QUALITY"
	textW := font.MeasureString(face, label).Ceil()
	w := textW + 2*(badgePadX+badgeBorder)*scale
	h := (badgeLineH + 2*(badgePadY+badgeBorder)) * scale

	outer := image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Min.Y+h)
	draw.Draw(dst, outer, image.NewUniform(black), image.Point{}, draw.Src)
	body := outer.Inset(badgeBorder * scale)
	draw.Draw(dst, body, image.NewUniform(badgeRed), image.Point{}, draw.Src)

	m := face.Metrics()
	textH := (m.Ascent + m.Descent).Ceil()
	baseline := body.Min.Y + (body.Dy()-textH)/2 + m.Ascent.Ceil()
	drawString(dst, face, label, body.Min.X+(body.Dx()-textW)/2, baseline, white)
	return nil
}
