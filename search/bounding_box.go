package search

import (
	"fmt"
	"math"

	"github.com/notargets/DGMapper/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// BoundingBox is an axis aligned box. The zero value is the point box at
// the origin; use EmptyBox for a box containing nothing.
type BoundingBox struct {
	Min, Max r3.Vec
}

// EmptyBox returns a box that Extend turns into the box of its first point
func EmptyBox() BoundingBox {
	inf := math.Inf(1)
	return BoundingBox{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// BoxOf returns the smallest box containing pts
func BoxOf(pts ...r3.Vec) BoundingBox {
	b := EmptyBox()
	for _, p := range pts {
		b = b.Extend(p)
	}
	return b
}

// IsEmpty reports whether the box contains no point
func (b BoundingBox) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend returns the box grown to include p
func (b BoundingBox) Extend(p r3.Vec) BoundingBox {
	return BoundingBox{
		Min: r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Merge returns the box containing b and o
func (b BoundingBox) Merge(o BoundingBox) BoundingBox {
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Inflate grows the box by r in every direction
func (b BoundingBox) Inflate(r float64) BoundingBox {
	if b.IsEmpty() {
		return b
	}
	d := r3.Vec{X: r, Y: r, Z: r}
	return BoundingBox{Min: r3.Sub(b.Min, d), Max: r3.Add(b.Max, d)}
}

// Contains reports whether p lies in the closed box
func (b BoundingBox) Contains(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Distance returns the Euclidean distance from p to the box, 0 inside
func (b BoundingBox) Distance(p r3.Vec) float64 {
	if b.IsEmpty() {
		return math.Inf(1)
	}
	axis := func(x, lo, hi float64) float64 {
		switch {
		case x < lo:
			return lo - x
		case x > hi:
			return x - hi
		}
		return 0
	}
	return r3.Norm(r3.Vec{
		X: axis(p.X, b.Min.X, b.Max.X),
		Y: axis(p.Y, b.Min.Y, b.Max.Y),
		Z: axis(p.Z, b.Min.Z, b.Max.Z),
	})
}

// Diagonal returns the length of the box diagonal, 0 for an empty box
func (b BoundingBox) Diagonal() float64 {
	if b.IsEmpty() {
		return 0
	}
	return r3.Norm(r3.Sub(b.Max, b.Min))
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// Dimension returns the number of axes with non zero extent
func (b BoundingBox) Dimension() int {
	if b.IsEmpty() {
		return 0
	}
	n := 0
	for _, d := range []float64{b.Max.X - b.Min.X, b.Max.Y - b.Min.Y, b.Max.Z - b.Min.Z} {
		if d > 0 {
			n++
		}
	}
	return n
}

// MarshalBinary encodes the box as six little endian float64
func (b BoundingBox) MarshalBinary() ([]byte, error) {
	return utils.EncodeFloats([]float64{
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z,
	}), nil
}

// UnmarshalBinary decodes a box written by MarshalBinary
func (b *BoundingBox) UnmarshalBinary(data []byte) error {
	v, err := utils.DecodeFloats(data)
	if err != nil {
		return err
	}
	if len(v) != 6 {
		return fmt.Errorf("bounding box needs 6 values, got %d", len(v))
	}
	b.Min = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	b.Max = r3.Vec{X: v[3], Y: v[4], Z: v[5]}
	return nil
}
