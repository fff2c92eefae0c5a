package imageservice

import (
	"fmt"

	"github.com/iiif-archive/iiifarchive/types"
)

// Region is a crop of the full resolution image
type Region struct {
	Full bool `json:"full,omitempty" yaml:"full,omitempty"`
	X    int  `json:"x" yaml:"x"`
	Y    int  `json:"y" yaml:"y"`
	W    int  `json:"w" yaml:"w"`
	H    int  `json:"h" yaml:"h"`
}

// String returns the region path segment
func (r Region) String() string {
	if r.Full {
		return "full"
	}
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.W, r.H)
}

// Request is one region scaled down to Width x Height
type Request struct {
	Region      Region `json:"region" yaml:"region"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	ScaleFactor int    `json:"scaleFactor" yaml:"scaleFactor"`
}

// Plan returns every request needed to mirror all declared resolutions of svc.
// Requests are grouped by scale factor in declared order, tiles within a factor
// are ordered by tile column then row, i.e. x outer and y inner.
// A service without tiles returns a single full resolution request.
func Plan(svc Service) ([]Request, error) {
	w, h := svc.Width(), svc.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image size %dx%d: %w", w, h, types.ErrInvalidDescriptor)
	}
	ts, ok := svc.Tiles()
	if !ok {
		return []Request{{
			Region:      Region{Full: true, W: w, H: h},
			Width:       w,
			Height:      h,
			ScaleFactor: 1,
		}}, nil
	}
	if ts.Width <= 0 || ts.Height <= 0 {
		return nil, fmt.Errorf("tile size %dx%d: %w", ts.Width, ts.Height, types.ErrInvalidDescriptor)
	}
	reqs := []Request{}
	for _, s := range ts.ScaleFactors {
		if s <= 0 {
			return nil, fmt.Errorf("scale factor %d: %w", s, types.ErrInvalidDescriptor)
		}
		reqs = append(reqs, planScale(w, h, ts.Width, ts.Height, s)...)
	}
	return reqs, nil
}

func planScale(w, h, tileW, tileH, s int) []Request {
	scaledW, scaledH := ceilDiv(w, s), ceilDiv(h, s)
	if scaledW <= tileW {
		return []Request{{
			Region:      Region{Full: true, W: w, H: h},
			Width:       scaledW,
			Height:      scaledH,
			ScaleFactor: s,
		}}
	}
	fw, fh := s*tileW, s*tileH
	tilesX, tilesY := ceilDiv(w, fw), ceilDiv(h, fh)
	reqs := make([]Request, 0, tilesX*tilesY)
	for x := 0; x < tilesX; x++ {
		for y := 0; y < tilesY; y++ {
			r := Region{X: x * fw, Y: y * fh, W: fw, H: fh}
			if r.X+r.W > w {
				r.W = w - r.X
			}
			if r.Y+r.H > h {
				r.H = h - r.Y
			}
			reqs = append(reqs, Request{
				Region:      r,
				Width:       ceilDiv(r.W, s),
				Height:      ceilDiv(r.H, s),
				ScaleFactor: s,
			})
		}
	}
	return reqs
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
