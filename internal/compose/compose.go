// Package compose lays out groups of page rasters side by side on a white canvas.
package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

var (
	// ErrNoPages is returned when a canvas is requested for an empty group.
	ErrNoPages = errors.New("group has no pages")
	// ErrNegativeGap is returned when the horizontal gap is below zero.
	ErrNegativeGap = errors.New("gap must not be negative")
	// ErrInvalidGroupSize is returned when pages per image is not positive.
	ErrInvalidGroupSize = errors.New("pages per image must be positive")
)

// Group is a contiguous run of pages merged into one output image.
type Group struct {
	// Index is the 1-based position of the group, used for output naming.
	Index int
	// Start is the 0-based index of the first page in the group.
	Start int
	// Count is the number of pages in the group.
	Count int
}

// End returns the 0-based index one past the last page in the group.
func (g Group) End() int { return g.Start + g.Count }

// Partition splits total pages into consecutive groups of perImage pages.
// The final group holds the remainder.
func Partition(total, perImage int) ([]Group, error) {
	if perImage <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidGroupSize, perImage)
	}

	if total <= 0 {
		return nil, nil
	}

	groups := make([]Group, 0, (total+perImage-1)/perImage)

	for start := 0; start < total; start += perImage {
		groups = append(groups, Group{
			Index: len(groups) + 1,
			Start: start,
			Count: min(perImage, total-start),
		})
	}

	return groups, nil
}

// CanvasSize returns the dimensions of a canvas holding pages of the given
// sizes laid out horizontally with gap pixels between neighbours.
func CanvasSize(sizes []image.Point, gap int) image.Point {
	var canvas image.Point

	for i, size := range sizes {
		canvas.X += size.X
		if i > 0 {
			canvas.X += gap
		}

		canvas.Y = max(canvas.Y, size.Y)
	}

	return canvas
}

// Compose pastes pages left to right onto a new white canvas, top aligned,
// with gap pixels between adjacent pages.
func Compose(pages []image.Image, gap int) (*image.RGBA, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	if gap < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeGap, gap)
	}

	sizes := make([]image.Point, len(pages))
	for i, page := range pages {
		sizes[i] = page.Bounds().Size()
	}

	size := CanvasSize(sizes, gap)
	canvas := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offsetX := 0

	for i, page := range pages {
		draw.Copy(canvas, image.Pt(offsetX, 0), page, page.Bounds(), draw.Src, nil)

		offsetX += sizes[i].X + gap
	}

	return canvas, nil
}

// OutputName returns the file name of the index-th merged image of a PDF.
func OutputName(stem string, index int) string {
	return fmt.Sprintf("%s_output_%03d.jpg", stem, index)
}
