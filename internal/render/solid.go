package render

import (
	"image"
	"strings"
)

// Solid renders each cell as a space with the average color of its
// pixel region as background. Coarser than HalfBlock but survives
// terminals without good Unicode block coverage.
type Solid struct{}

func (Solid) Name() string { return "solid" }

func (Solid) Render(img image.Image, cols, rows int) Tile {
	pw, ph := fitCells(img, cols, rows)
	if pw == 0 || ph == 0 {
		return Tile{}
	}
	// One pixel per cell; scale to pw x ph/2 directly.
	ch := ph / 2
	scaled := scale(img, pw, ch)

	var sb strings.Builder
	for y := 0; y < ch; y++ {
		for x := 0; x < pw; x++ {
			r, g, b := rgbAt(scaled, x, y)
			sb.WriteString(bgColor(r, g, b))
			sb.WriteByte(' ')
		}
		sb.WriteString(ansiReset)
		if y+1 < ch {
			sb.WriteByte('\n')
		}
	}
	bounds := img.Bounds()
	return Tile{
		Cells:   sb.String(),
		Width:   pw,
		Height:  ch,
		SourceW: bounds.Dx(),
		SourceH: bounds.Dy(),
	}
}
