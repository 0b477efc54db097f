package render

import "image"

// HalfBlock renders images as Unicode upper-half-block cell art with
// 24-bit color, packing two pixel rows into each terminal row.
type HalfBlock struct{}

func (HalfBlock) Name() string { return "halfblock" }

func (HalfBlock) Render(img image.Image, cols, rows int) Tile {
	pw, ph := fitCells(img, cols, rows)
	if pw == 0 || ph == 0 {
		return Tile{}
	}
	scaled := scale(img, pw, ph)
	bounds := img.Bounds()
	return Tile{
		Cells:   renderHalfBlocks(scaled, pw, ph),
		Width:   pw,
		Height:  ph / 2,
		SourceW: bounds.Dx(),
		SourceH: bounds.Dy(),
	}
}
