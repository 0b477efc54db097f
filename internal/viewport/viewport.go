// Package viewport computes which item indices of a virtualized grid
// are visible for given container metrics. Everything here is pure
// computation; metrics are pulled from the rendering layer on demand
// and a range is never trusted across a list replacement.
package viewport

// DefaultOverscanRows is the margin of extra rows included above and
// below the visible window so scrolling has tiles ready.
const DefaultOverscanRows = 2

// Metrics is a snapshot of the container state the estimator needs.
// Units are whatever the rendering surface measures in (terminal
// cells here); the math only assumes they are consistent.
type Metrics struct {
	// Height is the container's visible height.
	Height int
	// ScrollOffset is the distance scrolled from the top.
	ScrollOffset int
	// Columns is the grid column count. Zero means unknown and
	// triggers the degraded per-item scan.
	Columns int
	// Gap is the spacing between rows.
	Gap int
	// ItemHeight is the measured or estimated height of one item.
	ItemHeight int
	// TotalItems is the length of the item list.
	TotalItems int
	// OverscanRows widens the range; negative values mean default.
	OverscanRows int
}

// Range is a half-open-free inclusive index range [Start, End] into
// the item list. Empty ranges have End < Start.
type Range struct {
	Start int
	End   int
}

// Empty reports whether the range contains no indices.
func (r Range) Empty() bool {
	return r.End < r.Start
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether i falls inside the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i <= r.End
}

// Visible computes the visible index range plus overscan for the
// given metrics. With a known column count this is O(1) row math;
// otherwise it falls back to a scan bounded by the viewport height,
// never by the collection size.
func Visible(m Metrics) Range {
	if m.TotalItems <= 0 || m.Height <= 0 || m.ItemHeight <= 0 {
		return Range{Start: 0, End: -1}
	}

	overscan := m.OverscanRows
	if overscan < 0 {
		overscan = DefaultOverscanRows
	}

	if m.Columns <= 0 {
		return visibleScan(m, overscan)
	}

	rowHeight := m.ItemHeight + m.Gap
	totalRows := (m.TotalItems + m.Columns - 1) / m.Columns

	startRow := m.ScrollOffset/rowHeight - overscan
	// ceilDiv yields an exclusive row bound; the last visible row is
	// one before it.
	endRow := ceilDiv(m.ScrollOffset+m.Height, rowHeight) - 1 + overscan

	startRow = clamp(startRow, 0, totalRows-1)
	endRow = clamp(endRow, 0, totalRows-1)

	start := startRow * m.Columns
	end := (endRow+1)*m.Columns - 1
	if end > m.TotalItems-1 {
		end = m.TotalItems - 1
	}
	return Range{Start: start, End: end}
}

// visibleScan is the degraded single-column walk used when the column
// count is unknown. Cost is proportional to the scrolled-past rows
// plus the visible window.
func visibleScan(m Metrics, overscan int) Range {
	rowHeight := m.ItemHeight + m.Gap
	top := m.ScrollOffset - overscan*rowHeight
	bottom := m.ScrollOffset + m.Height + overscan*rowHeight

	start, end := -1, -1
	for i, y := 0, 0; i < m.TotalItems; i, y = i+1, y+rowHeight {
		if y+m.ItemHeight <= top {
			continue
		}
		if y >= bottom {
			break
		}
		if start < 0 {
			start = i
		}
		end = i
	}
	if start < 0 {
		return Range{Start: 0, End: -1}
	}
	return Range{Start: start, End: end}
}

// VisibleIDs builds the membership set of item ids inside r, given
// the ordered id list. Out-of-bounds ranges are truncated.
func VisibleIDs(ids []string, r Range) map[string]struct{} {
	set := make(map[string]struct{}, r.Len())
	if r.Empty() {
		return set
	}
	start := clamp(r.Start, 0, len(ids))
	end := clamp(r.End+1, 0, len(ids))
	for _, id := range ids[start:end] {
		set[id] = struct{}{}
	}
	return set
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
