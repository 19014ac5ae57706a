package mapdb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// BlockSize is the edge length of a block in nodes.
	BlockSize = 16
)

// Pos is an integer node coordinate.
type Pos struct {
	X, Y, Z int16
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// Block returns the position of the block containing p.
func (p Pos) Block() BlockPos {
	return BlockPos{
		X: floorDiv(p.X),
		Y: floorDiv(p.Y),
		Z: floorDiv(p.Z),
	}
}

// relative returns the position of p inside its block.
func (p Pos) relative() (int, int, int) {
	return mod(p.X), mod(p.Y), mod(p.Z)
}

// BlockPos is the coordinate of a block, in units of BlockSize nodes.
type BlockPos struct {
	X, Y, Z int16
}

func (b BlockPos) String() string {
	return fmt.Sprintf("[%d,%d,%d]", b.X, b.Y, b.Z)
}

func floorDiv(a int16) int16 {
	q := a / BlockSize
	if a%BlockSize < 0 {
		q--
	}
	return q
}

func mod(a int16) int {
	m := int(a) % BlockSize
	if m < 0 {
		m += BlockSize
	}
	return m
}

func roundToInt16(f float64) (int16, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := math.Round(f)
	if r < math.MinInt16 || r > math.MaxInt16 {
		return 0, false
	}
	return int16(r), true
}

// FloatToPos divides v by scale and rounds each coordinate to the nearest
// node. The second return value is false if a coordinate is not finite or
// falls outside the int16 range.
func FloatToPos(v r3.Vec, scale float64) (Pos, bool) {
	x, okX := roundToInt16(v.X / scale)
	y, okY := roundToInt16(v.Y / scale)
	z, okZ := roundToInt16(v.Z / scale)
	if !okX || !okY || !okZ {
		return Pos{}, false
	}
	return Pos{X: x, Y: y, Z: z}, true
}

// Vec returns p as a vector multiplied by scale.
func (p Pos) Vec(scale float64) r3.Vec {
	return r3.Scale(scale, r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)})
}
