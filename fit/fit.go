// Package fit computes centered, aspect-preserving placements for
// raster images on document pages.
package fit

import (
	"fmt"
	"math"
)

// Placement is a computed image rectangle in page coordinates.
type Placement struct {
	Width  float64
	Height float64
	X      float64
	Y      float64
}

// Compute places an image of naturalW x naturalH pixels on a page of
// pageW x pageH points, honoring a uniform margin. Images that fit
// inside the margin box keep their natural size; larger images are
// scaled down uniformly so the constraining axis fills the box. The
// result is centered on both axes. Upscaling never happens.
func Compute(naturalW, naturalH, pageW, pageH, margin float64) (Placement, error) {
	for _, v := range []float64{naturalW, naturalH, pageW, pageH} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Placement{}, fmt.Errorf("fit: dimensions must be finite and positive, got %v", v)
		}
	}
	if margin < 0 || math.IsNaN(margin) || math.IsInf(margin, 0) {
		return Placement{}, fmt.Errorf("fit: margin must be finite and non-negative, got %v", margin)
	}
	if 2*margin >= math.Min(pageW, pageH) {
		return Placement{}, fmt.Errorf("fit: margin %v leaves no drawable area on a %vx%v page", margin, pageW, pageH)
	}

	maxW := pageW - 2*margin
	maxH := pageH - 2*margin

	w, h := naturalW, naturalH
	if naturalW > maxW || naturalH > maxH {
		scale := math.Min(maxW/naturalW, maxH/naturalH)
		w = naturalW * scale
		h = naturalH * scale
	}
	return Placement{
		Width:  w,
		Height: h,
		X:      (pageW - w) / 2,
		Y:      (pageH - h) / 2,
	}, nil
}
