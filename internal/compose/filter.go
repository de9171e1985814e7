package compose

import "image"

const (
	contrastFactor = 1.5
	saturateFactor = 2.0
)

// slopFilter applies contrast(150%) then saturate(200%) to r in place,
// using the CSS filter-effects formulas.
func slopFilter(img *image.RGBA, r image.Rectangle) {
	r = r.Intersect(img.Bounds())
	s := saturateFactor
	m := [3][3]float64{
		{0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s},
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[img.PixOffset(r.Min.X, y):img.PixOffset(r.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			rgb := [3]float64{
				contrast(float64(row[i]) / 255),
				contrast(float64(row[i+1]) / 255),
				contrast(float64(row[i+2]) / 255),
			}
			for c := 0; c < 3; c++ {
				v := m[c][0]*rgb[0] + m[c][1]*rgb[1] + m[c][2]*rgb[2]
				row[i+c] = toByte(v)
			}
		}
	}
}

func contrast(v float64) float64 {
	return clamp01((v-0.5)*contrastFactor + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toByte(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
