package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// LightType 0 is the sentinel terminating the active light list: shading
// iterates the light array only up to the first LightNone entry.
type LightType uint32

const (
	LightNone LightType = iota
	LightDirectional
	LightPoint
	LightSpot
)

type Light struct {
	Position       mgl32.Vec3
	Type           LightType
	Color          mgl32.Vec3
	Intensity      float32
	Range          float32
	InnerConeAngle float32
	OuterConeAngle float32
}

const LightByteSize = 48

func (l *Light) ToBytes() []byte {
	buf := make([]byte, LightByteSize)
	putVec3(buf[0:], l.Position)
	binary.LittleEndian.PutUint32(buf[12:], uint32(l.Type))
	putVec3(buf[16:], l.Color)
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(l.Intensity))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(l.Range))
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(l.InnerConeAngle))
	binary.LittleEndian.PutUint32(buf[40:], math.Float32bits(l.OuterConeAngle))
	return buf
}
