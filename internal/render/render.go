// Package render turns raw image bytes into renderable terminal
// tiles. It decodes, downscales, and converts pixels to cell art;
// the result is wrapped in a cache handle with byte accounting.
package render

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// Register the stdlib decoders; webp comes from x/image.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/smileynet/mosaic/internal/cache"
)

// Tile is a rendered image sized for a terminal cell grid. Cells is
// ANSI-colored text, one line per cell row.
type Tile struct {
	Cells  string
	Width  int // cell columns
	Height int // cell rows
	// SourceW and SourceH are the decoded image's pixel dimensions,
	// kept for the info line.
	SourceW int
	SourceH int
}

// Renderer converts a decoded image into a Tile of the given cell
// dimensions.
type Renderer interface {
	Name() string
	Render(img image.Image, cols, rows int) Tile
}

// Builder decodes bytes and renders tiles with a configured Renderer.
type Builder struct {
	renderer Renderer
	tileCols int
	tileRows int
	origCols int
	origRows int
}

// Sizes configures tile dimensions for a Builder.
type Sizes struct {
	TileCols, TileRows         int // thumbnail tile cell size
	OriginalCols, OriginalRows int // full-view cell size
}

// NewBuilder creates a Builder over the given renderer and sizes.
func NewBuilder(r Renderer, s Sizes) *Builder {
	return &Builder{
		renderer: r,
		tileCols: s.TileCols, tileRows: s.TileRows,
		origCols: s.OriginalCols, origRows: s.OriginalRows,
	}
}

// Build decodes data and renders it at the dimensions for kind,
// returning a cache handle that accounts the rendered cell text.
// Decode failures are ordinary errors; the pipeline treats them as
// retry-eligible like any read failure.
func (b *Builder) Build(data []byte, pathHint string, kind cache.Kind) (*cache.Handle, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("render: decoding %s: %w", pathHint, err)
	}

	cols, rows := b.tileCols, b.tileRows
	if kind == cache.Original {
		cols, rows = b.origCols, b.origRows
	}

	tile := b.renderer.Render(img, cols, rows)
	// Tiles are plain memory; releasing them has no side effect, but
	// the size still participates in cache accounting.
	return cache.NewHandle(tile, len(tile.Cells), nil), nil
}

// scale resamples img to exactly w x h pixels.
func scale(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// fitCells shrinks a requested cell box to preserve the image's
// aspect ratio, treating a cell as half as wide as it is tall.
func fitCells(img image.Image, cols, rows int) (int, int) {
	bounds := img.Bounds()
	iw, ih := bounds.Dx(), bounds.Dy()
	if iw <= 0 || ih <= 0 || cols <= 0 || rows <= 0 {
		return 0, 0
	}

	// Half-block rendering gives two pixels per cell row, and a cell
	// is ~half as wide as tall, so the pixel grid is cols x 2*rows.
	pw, ph := cols, 2*rows
	if iw*ph > ih*pw {
		ph = ih * pw / iw
	} else {
		pw = iw * ph / ih
	}
	if pw < 1 {
		pw = 1
	}
	if ph < 2 {
		ph = 2
	}
	return pw, ph
}

const ansiReset = "\x1b[0m"

// fgColor emits a 24-bit foreground color escape.
func fgColor(r, g, b uint8) string {
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", r, g, b)
}

// bgColor emits a 24-bit background color escape.
func bgColor(r, g, b uint8) string {
	return fmt.Sprintf("\x1b[48;2;%d;%d;%dm", r, g, b)
}

// rgbAt returns 8-bit RGB at (x, y).
func rgbAt(img *image.RGBA, x, y int) (uint8, uint8, uint8) {
	i := img.PixOffset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

// renderHalfBlocks writes one "▀" per cell with the upper pixel as
// foreground and the lower as background, two pixel rows per line.
func renderHalfBlocks(img *image.RGBA, pw, ph int) string {
	var sb strings.Builder
	for y := 0; y+1 < ph; y += 2 {
		for x := 0; x < pw; x++ {
			tr, tg, tb := rgbAt(img, x, y)
			br, bg, bb := rgbAt(img, x, y+1)
			sb.WriteString(fgColor(tr, tg, tb))
			sb.WriteString(bgColor(br, bg, bb))
			sb.WriteString("▀")
		}
		sb.WriteString(ansiReset)
		if y+2 < ph {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
