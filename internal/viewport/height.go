package viewport

// DefaultAspect is the width:height ratio assumed for a tile when no
// measurement exists. Terminal cells are roughly twice as tall as
// wide, so a 16:9 image lands near 2:1 in cells.
const DefaultAspect = 2.0

// HeightEstimator remembers the last trustworthy measured item height
// and falls back to a geometry-derived estimate before anything has
// been measured. Not safe for concurrent use; it lives with the
// rendering loop.
type HeightEstimator struct {
	measured int
	aspect   float64
}

// NewHeightEstimator creates an estimator with the given aspect
// ratio. Non-positive aspects use DefaultAspect.
func NewHeightEstimator(aspect float64) *HeightEstimator {
	if aspect <= 0 {
		aspect = DefaultAspect
	}
	return &HeightEstimator{aspect: aspect}
}

// Observe records a measured item height. Measurements of one cell or
// less are dropped: a container mid-layout reports degenerate sizes,
// and caching one would poison every later range computation.
func (e *HeightEstimator) Observe(height int) {
	if height <= 1 {
		return
	}
	e.measured = height
}

// ItemHeight returns the best known item height for the given
// container width, column count and gap. Preference order: a real
// measurement, then an estimate from available width and aspect.
func (e *HeightEstimator) ItemHeight(width, columns, gap int) int {
	if e.measured > 1 {
		return e.measured
	}
	if columns <= 0 || width <= 0 {
		return 0
	}
	itemWidth := (width - (columns-1)*gap) / columns
	if itemWidth <= 0 {
		return 0
	}
	h := int(float64(itemWidth) / e.aspect)
	if h < 1 {
		h = 1
	}
	return h
}
