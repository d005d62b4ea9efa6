// Package nesting computes how many printed pieces fit on one substrate sheet.
package nesting

import (
	"errors"
	"math"
)

// ErrNoCapacity is returned by SheetsNeeded when a sheet cannot hold a single piece.
var ErrNoCapacity = errors.New("nesting: piece does not fit on sheet")

// epsilon absorbs float noise such as 20.999999 pieces per row.
const epsilon = 1e-9

// Dimensions of a piece or a sheet, in the shop's length unit (cm).
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Orientation of the piece on the sheet.
type Orientation string

const (
	OrientationNone    Orientation = ""
	OrientationNormal  Orientation = "normal"
	OrientationRotated Orientation = "rotated"
)

// Layout is the result of a nesting computation.
type Layout struct {
	PiecesPerSheet int         `json:"pieces_per_sheet"`
	Columns        int         `json:"columns"`
	Rows           int         `json:"rows"`
	Orientation    Orientation `json:"orientation"`
	SheetsNeeded   int         `json:"sheets_needed"`
	Utilization    float64     `json:"utilization"` // printed area / sheet area, 0..1
}

// Capacity returns how many pieces fit on one sheet.
// The usable area is the sheet minus bleed on every edge; each piece occupies its own size plus
// spacing. With allowRotate the piece is also tried turned 90 degrees and the better fit wins.
// A zero result means the piece cannot be nested on this sheet.
func Capacity(piece, sheet Dimensions, bleed, spacing float64, allowRotate bool) int {
	n, _, _ := fit(piece, sheet, bleed, spacing)
	if !allowRotate {
		return n
	}
	r, _, _ := fit(Dimensions{Width: piece.Height, Height: piece.Width}, sheet, bleed, spacing)
	if r > n {
		return r
	}
	return n
}

// SheetsNeeded returns ceil(quantity / capacity).
func SheetsNeeded(quantity, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, ErrNoCapacity
	}
	if quantity <= 0 {
		return 0, nil
	}
	return (quantity + capacity - 1) / capacity, nil
}

// Plan computes the best layout for quantity pieces. PiecesPerSheet is zero, with no error,
// when the piece does not fit.
func Plan(piece, sheet Dimensions, bleed, spacing float64, allowRotate bool, quantity int) Layout {
	best := Layout{}
	if n, cols, rows := fit(piece, sheet, bleed, spacing); n > 0 {
		best = Layout{PiecesPerSheet: n, Columns: cols, Rows: rows, Orientation: OrientationNormal}
	}
	if allowRotate {
		rotated := Dimensions{Width: piece.Height, Height: piece.Width}
		if n, cols, rows := fit(rotated, sheet, bleed, spacing); n > best.PiecesPerSheet {
			best = Layout{PiecesPerSheet: n, Columns: cols, Rows: rows, Orientation: OrientationRotated}
		}
	}
	if best.PiecesPerSheet == 0 {
		return best
	}

	best.SheetsNeeded, _ = SheetsNeeded(quantity, best.PiecesPerSheet)
	if area := sheet.Width * sheet.Height; area > 0 {
		best.Utilization = float64(best.PiecesPerSheet) * piece.Width * piece.Height / area
	}
	return best
}

func fit(piece, sheet Dimensions, bleed, spacing float64) (total, cols, rows int) {
	if piece.Width <= 0 || piece.Height <= 0 {
		return 0, 0, 0
	}
	usableW := sheet.Width - 2*bleed
	usableH := sheet.Height - 2*bleed
	if usableW <= 0 || usableH <= 0 {
		return 0, 0, 0
	}
	cols = int(math.Floor(usableW/(piece.Width+spacing) + epsilon))
	rows = int(math.Floor(usableH/(piece.Height+spacing) + epsilon))
	if cols <= 0 || rows <= 0 {
		return 0, 0, 0
	}
	return cols * rows, cols, rows
}
