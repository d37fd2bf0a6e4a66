package layout

import "math"

// Rect represents a window position and size in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// WorkspaceArea is the usable screen region for client windows, excluding
// the strip reserved for the daemon console.
type WorkspaceArea struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Placement is the resolved position and size assigned to one session window.
type Placement = Rect

// Grid describes the rows x cols arrangement chosen for a window count.
type Grid struct {
	Rows int
	Cols int
}

// ChooseGrid picks the grid for count windows on an area with the given
// shape bias. Candidates are the tight grids (no wasted full row); the
// winner minimizes the log-distance between the per-cell aspect ratio and
// a target ratio derived by scaling the area ratio with the bias. Positive
// bias drives toward single-row columns, negative toward single-column
// rows, zero toward the squarest grid. Ties prefer more rows.
func ChooseGrid(count int, bias float64) Grid {
	if count <= 0 {
		return Grid{}
	}

	best := Grid{Rows: count, Cols: 1}
	bestDist := math.Inf(1)

	for cols := 1; cols <= count; cols++ {
		rows := (count + cols - 1) / cols

		// Per-cell aspect = (W/cols)/(H/rows) = areaRatio * rows/cols.
		// Target = areaRatio * e^-bias. The area ratio cancels out.
		dist := math.Abs(math.Log(float64(rows)/float64(cols)) + bias)

		if dist < bestDist || (dist == bestDist && rows > best.Rows) {
			best = Grid{Rows: rows, Cols: cols}
			bestDist = dist
		}
	}

	return best
}

// Compute returns one placement per window, assigned row-major in the
// given order. count == 0 yields an empty result. Repeated calls with
// unchanged inputs produce identical placements.
func Compute(area WorkspaceArea, count int, bias float64) []Placement {
	if count <= 0 {
		return nil
	}

	grid := ChooseGrid(count, bias)

	cellWidth := area.Width / grid.Cols
	cellHeight := area.Height / grid.Rows

	placements := make([]Placement, count)

	for i := 0; i < count; i++ {
		row := i / grid.Cols
		col := i % grid.Cols

		width := cellWidth
		height := cellHeight

		// Windows in a partially filled last row expand to fill the width,
		// same as a csshX-style tiler.
		if row == grid.Rows-1 {
			lastRowCount := count - row*grid.Cols
			if lastRowCount > 0 && lastRowCount < grid.Cols {
				width = area.Width / lastRowCount
				col = i - row*grid.Cols
			}
		}

		placements[i] = Placement{
			X:      area.X + col*width,
			Y:      area.Y + row*height,
			Width:  width,
			Height: height,
		}
	}

	return placements
}
