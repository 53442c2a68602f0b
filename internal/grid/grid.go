// Package grid sizes the row/column partition of a source image.
package grid

import (
	"image"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
)

const (
	// WideAspectRatio is the width/height ratio above which columns are stretched
	WideAspectRatio = 1.5
	// TallAspectRatio is the width/height ratio below which rows are stretched
	TallAspectRatio = 0.67
	// aspectPivot divides the aspect ratio to get the stretch factor
	aspectPivot = 1.2
	// MaxAdjustmentFactor caps the stretch applied to the base grid
	MaxAdjustmentFactor = 1.5
)

var baseGrids = map[int][2]int{
	100:  {10, 10},
	300:  {15, 20},
	500:  {20, 25},
	1000: {25, 40},
	2000: {40, 50},
}

// Base returns the unadjusted (rows, cols) for pieceCount
func Base(pieceCount int) (rows, cols int, err error) {
	g, ok := baseGrids[pieceCount]
	if !ok {
		return 0, 0, domain.InvalidInput("calculate grid", "%w: %d", domain.ErrUnsupportedPieceCount, pieceCount)
	}
	return g[0], g[1], nil
}

// AdjustmentFactor returns the stretch applied for the given aspect ratio,
// or 1 when the image is neither wide nor tall enough to be adjusted.
func AdjustmentFactor(aspectRatio float64) float64 {
	switch {
	case aspectRatio > WideAspectRatio:
		return min(aspectRatio/aspectPivot, MaxAdjustmentFactor)
	case aspectRatio < TallAspectRatio:
		return min(aspectPivot/aspectRatio, MaxAdjustmentFactor)
	default:
		return 1
	}
}

// Calculate returns the grid for pieceCount pieces over an image of the given
// size. rows*cols is always >= pieceCount and may exceed it.
func Calculate(pieceCount, imageWidth, imageHeight int) (rows, cols int, err error) {
	baseRows, baseCols, err := Base(pieceCount)
	if err != nil {
		return 0, 0, err
	}
	if imageWidth <= 0 || imageHeight <= 0 {
		return 0, 0, domain.InvalidInput("calculate grid", "image dimensions must be positive, got %dx%d", imageWidth, imageHeight)
	}

	aspectRatio := float64(imageWidth) / float64(imageHeight)
	factor := AdjustmentFactor(aspectRatio)

	switch {
	case aspectRatio > WideAspectRatio:
		cols = int(float64(baseCols) * factor)
		rows = pieceCount / cols
		for rows*cols < pieceCount {
			cols++
			rows = pieceCount / cols
		}
	case aspectRatio < TallAspectRatio:
		rows = int(float64(baseRows) * factor)
		cols = pieceCount / rows
		for rows*cols < pieceCount {
			rows++
			cols = pieceCount / rows
		}
	default:
		rows, cols = baseRows, baseCols
	}

	return rows, cols, nil
}

// Bounds returns the pixel rectangle of cell (row, col). The last row and
// column absorb the rounding remainder so cells tile the image exactly.
func Bounds(row, col, rows, cols, imageWidth, imageHeight int) image.Rectangle {
	pieceWidth := imageWidth / cols
	pieceHeight := imageHeight / rows

	left := col * pieceWidth
	top := row * pieceHeight

	right := left + pieceWidth
	if col == cols-1 {
		right = imageWidth
	}
	bottom := top + pieceHeight
	if row == rows-1 {
		bottom = imageHeight
	}

	return image.Rect(left, top, right, bottom)
}
