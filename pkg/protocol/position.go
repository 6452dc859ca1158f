package protocol

import "fmt"

// Position is an integer block coordinate.
type Position struct {
	X, Y, Z int32
}

// Pack returns the wire form of p. Coordinates outside the 26/12/26 bit
// ranges are truncated.
func (p Position) Pack() int64 {
	return (int64(p.X)&0x3FFFFFF)<<38 | (int64(p.Z)&0x3FFFFFF)<<12 | int64(p.Y)&0xFFF
}

// UnpackPosition reverses Pack, sign-extending each component.
func UnpackPosition(v int64) Position {
	return Position{
		X: int32(v >> 38),
		Y: int32(v << 52 >> 52),
		Z: int32(v << 26 >> 38),
	}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}
